package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/store"
)

const ConfigPath = "config/gamehub.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("GAMEHUB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	})))

	slog.Info("data store starting",
		"bind", cfg.DataStore.BindAddress, "port", cfg.DataStore.Port,
		"snapshot", cfg.DataStore.SnapshotPath)

	st, err := store.Open(cfg.DataStore.SnapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}

	srv := store.NewServer(cfg.DataStore, st)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("data store server: %w", err)
	}

	// Online flags are session state; none survive a restart.
	if err := st.Cleanup(); err != nil {
		return fmt.Errorf("cleanup on shutdown: %w", err)
	}
	slog.Info("data store stopped")
	return nil
}
