package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/api"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/bootstrap"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/config"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting facetrail API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.ProviderType),
		slog.String("cache_backend", cfg.CacheBackend),
		slog.String("search_index", cfg.SearchIndex),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Registry: registry, Migrate: true})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.Close()

	hub := ws.NewHub(svc.Jobs, logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{Max: cfg.RateLimit, Window: time.Minute})

	router := api.NewRouter(logger, &api.Dependencies{
		DB:            svc.DB,
		Registrar:     svc.Registrar,
		Media:         svc.Media,
		Faces:         svc.Faces,
		Jobs:          svc.Jobs,
		Batches:       svc.Scheduler,
		Searcher:      svc.Search,
		Stats:         svc.Stats,
		Cache:         svc.Cache,
		Hub:           hub,
		Metrics:       svc.Metrics,
		Gatherer:      registry,
		Limiter:       limiter,
		MaxUploadSize: int64(cfg.MaxUploadSize),
		ChunkSize:     cfg.BatchChunkSize,
	})
	router.Setup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return svc.Workers.Run(gctx)
	})

	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})

	svc.RunMaintenance(gctx)

	if cfg.WatchDir != "" {
		w := svc.NewWatcher(cfg.WatchDir)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		done := make(chan error, 1)
		go func() { done <- router.Shutdown() }()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("shutdown error", slog.Any("error", err))
			}
		case <-time.After(10 * time.Second):
			logger.Warn("server shutdown timed out")
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
