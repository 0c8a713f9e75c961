package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/bootstrap"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/config"
)

// Version is the CLI version.
const Version = "0.1.0"

var (
	cfg    *config.Config
	logger *slog.Logger

	migrateFirst bool
)

var rootCmd = &cobra.Command{
	Use:     "facetrail",
	Short:   "Face ingestion and similarity search for photo and video libraries",
	Version: Version,
	Long: `facetrail detects faces in images and videos, stores their embeddings in
PostgreSQL and finds the indexed faces most similar to a query image.

Configuration is read from the environment. A .env file in the working
directory is loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
		// stdout carries command output, logs go to stderr
		logger = config.NewLoggerTo(os.Stderr, cfg.Environment)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&migrateFirst, "migrate", false, "Apply pending schema migrations before running")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openServices wires the shared services. localQueue keeps jobs in memory so
// a one-shot command does not hand its work to workers running elsewhere.
func openServices(ctx context.Context, localQueue bool) (*bootstrap.Services, error) {
	svc, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Migrate:    migrateFirst,
		LocalQueue: localQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return svc, nil
}

// startWorkers runs the worker pool in the background. The returned function
// stops the pool and waits for running jobs to finish.
func startWorkers(ctx context.Context, svc *bootstrap.Services) func() error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Workers.Run(gctx)
	})
	return func() error {
		svc.Workers.Stop()
		return g.Wait()
	}
}
