package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gamehub/internal/bundle"
	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/dsclient"
	"github.com/udisondev/gamehub/internal/lobby"
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

	slog.Info("lobby server starting",
		"bind", cfg.Lobby.BindAddress, "port", cfg.Lobby.Port,
		"datastore", cfg.Lobby.DataStore.Addr())

	pool := dsclient.NewPool(cfg.Lobby.DataStore.Addr(), cfg.Lobby.PoolSize)
	defer pool.Close()

	bundles, err := bundle.NewRepository(cfg.Lobby.BundleRoot)
	if err != nil {
		return fmt.Errorf("opening bundle tree: %w", err)
	}

	srv := lobby.NewServer(cfg.Lobby, pool, bundles)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("lobby server: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("lobby server stopped")
	return nil
}
