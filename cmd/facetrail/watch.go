package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and index new files as they appear",
	Long: `Watch a directory for new images and videos. A file is registered once its
size has stayed unchanged for the stability window; files already indexed
are skipped. Registered files are processed by the worker pool of this
process and of any other worker sharing the database.

Examples:
  facetrail watch ./inbox
  facetrail watch ./inbox --existing`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("existing", false, "Also register files already in the directory")
	watchCmd.Flags().Bool("no-workers", false, "Only register files, leave processing to other workers")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("existing") {
		cfg.WatchProcessExisting, _ = cmd.Flags().GetBool("existing")
	}
	noWorkers, _ := cmd.Flags().GetBool("no-workers")

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	g, gctx := errgroup.WithContext(ctx)

	w := svc.NewWatcher(args[0])
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	if !noWorkers {
		g.Go(func() error {
			return svc.Workers.Run(gctx)
		})
	}

	logger.Info("watching directory", "dir", args[0], "workers", !noWorkers)
	return g.Wait()
}
