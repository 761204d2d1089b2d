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
	"github.com/udisondev/gamehub/internal/devsvc"
	"github.com/udisondev/gamehub/internal/dsclient"
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

	slog.Info("developer server starting",
		"bind", cfg.Developer.BindAddress, "port", cfg.Developer.Port,
		"datastore", cfg.Developer.DataStore.Addr())

	pool := dsclient.NewPool(cfg.Developer.DataStore.Addr(), cfg.Developer.PoolSize)
	defer pool.Close()

	bundles, err := bundle.NewRepository(cfg.Developer.BundleRoot)
	if err != nil {
		return fmt.Errorf("opening bundle tree: %w", err)
	}

	srv := devsvc.NewServer(cfg.Developer, pool, bundles)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("developer server: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("developer server stopped")
	return nil
}
