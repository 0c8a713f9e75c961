package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Detect and index the faces of one image or video",
	Long: `Register a file and run its media job in this process, showing progress
until the job finishes.

Files already indexed (same content and name) are reported and skipped.

Examples:
  # Process a photo and wait for the result
  facetrail process ./holiday/beach.jpg

  # Hand the file to the workers of a running server instead
  facetrail process ./clips/party.mp4 --enqueue`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Bool("enqueue", false, "Queue the file on the shared job queue and return immediately")
	processCmd.Flags().Bool("json", false, "Output the final job status as JSON")
}

func runProcess(cmd *cobra.Command, args []string) error {
	enqueue, _ := cmd.Flags().GetBool("enqueue")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, !enqueue)
	if err != nil {
		return err
	}
	defer svc.Close()

	reg, err := svc.Registrar.RegisterFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", args[0], err)
	}
	if reg.Duplicate {
		fmt.Printf("Already registered as %s (status %s)\n", reg.Media.ID, reg.Media.Status)
		return nil
	}
	if enqueue {
		fmt.Printf("Queued media %s as job %s\n", reg.Media.ID, reg.Job.ID)
		return nil
	}

	wait := startWorkers(ctx, svc)
	status, err := followJob(ctx, svc.Jobs, reg.Job.ID, filepath.Base(args[0]))
	if werr := wait(); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(status)
	}
	return printMediaJob(status)
}

func printMediaJob(status domain.JobStatus) error {
	if status.State == domain.JobStateFailure {
		return fmt.Errorf("job %s failed: %s", status.ID, status.Message)
	}

	var result domain.MediaResult
	if err := json.Unmarshal(status.Result, &result); err != nil {
		return fmt.Errorf("decode job result: %w", err)
	}

	fmt.Printf("Media:    %s\n", result.MediaID)
	fmt.Printf("Faces:    %d\n", result.FacesFound)
	if result.FramesSampled > 0 {
		fmt.Printf("Frames:   %d\n", result.FramesSampled)
	}
	if result.Truncated {
		fmt.Println("Note:     processing stopped at the soft time limit, results are partial")
	}
	fmt.Printf("Duration: %dms\n", result.DurationMs)
	return nil
}
