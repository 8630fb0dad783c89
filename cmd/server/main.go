package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/nextworth-marketdata/internal/app"
	"github.com/trogers1052/nextworth-marketdata/internal/config"
	"github.com/trogers1052/nextworth-marketdata/internal/sweeper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		app.NewLogger(config.LogConfig{Level: "info"}).Fatalf("failed to load config: %v", err)
	}
	logger := app.NewLogger(cfg.Log)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if consumer := a.Consumer(); consumer != nil {
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(a.DB, a.Service, cfg.Sweeper, logger.WithField("component", "sweeper"))
		if err := sw.Register(gctx); err != nil {
			logger.Fatalf("failed to schedule sweeper: %v", err)
		}
		sw.Start()
		defer sw.Stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server error: %v", err)
	}
	logger.Info("server stopped")
}
