package main

import (
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker pool against the shared job queue",
	Long: `Claim and execute pending media and batch chunk jobs until interrupted.
Several workers, on one host or many, can share the same database; each
job is claimed by exactly one of them.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Int("concurrency", 0, "Jobs executed in parallel (default WORKER_CONCURRENCY)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if concurrency, _ := cmd.Flags().GetInt("concurrency"); concurrency > 0 {
		cfg.WorkerConcurrency = concurrency
	}

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.RunMaintenance(ctx)
	return svc.Workers.Run(ctx)
}
