package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Index every supported file in a directory as one batch",
	Long: `Import every image and video in a directory, split them into chunks and
run the chunk jobs, showing overall progress.

A failing item is recorded in its chunk result and does not stop the others.
Files that were already indexed are skipped.

Examples:
  facetrail batch ./photos
  facetrail batch ./archive --recursive --chunk-size 25`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Bool("recursive", false, "Descend into subdirectories")
	batchCmd.Flags().Int("chunk-size", 0, "Media items per chunk job (default BATCH_CHUNK_SIZE)")
	batchCmd.Flags().Bool("enqueue", false, "Queue the chunks on the shared job queue and return immediately")
	batchCmd.Flags().Bool("json", false, "Output the final batch status as JSON")
}

func runBatch(cmd *cobra.Command, args []string) error {
	recursive, _ := cmd.Flags().GetBool("recursive")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	enqueue, _ := cmd.Flags().GetBool("enqueue")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if chunkSize == 0 {
		chunkSize = cfg.BatchChunkSize
	}

	files, err := mediaFiles(args[0], recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No supported media files found")
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, !enqueue)
	if err != nil {
		return err
	}
	defer svc.Close()

	ids := make([]uuid.UUID, 0, len(files))
	skipped := 0
	for _, path := range files {
		reg, err := svc.Registrar.ImportFile(ctx, path)
		if err != nil {
			logger.Warn("failed to import file", "path", path, "error", err)
			skipped++
			continue
		}
		if reg.Duplicate {
			skipped++
			continue
		}
		ids = append(ids, reg.Media.ID)
	}

	fmt.Fprintf(os.Stderr, "Files: %d new, %d skipped\n", len(ids), skipped)
	if len(ids) == 0 {
		return nil
	}

	batch, err := svc.Scheduler.Submit(ctx, ids, chunkSize)
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}
	if enqueue {
		fmt.Printf("Queued batch %s: %d items in %d chunks\n", batch.ID, batch.Total, len(batch.JobIDs))
		return nil
	}

	wait := startWorkers(ctx, svc)
	status, err := followBatch(ctx, svc.Scheduler, batch)
	if werr := wait(); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(status)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHUNK\tSTATE\tITEMS\tMESSAGE")
	for i, js := range status.Jobs {
		fmt.Fprintf(w, "%d\t%s\t%d/%d\t%s\n", i, js.State, js.Current, js.Total, js.Message)
	}
	return w.Flush()
}

// mediaFiles lists the supported images and videos under dir in lexical order.
func mediaFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := domain.MediaTypeFromPath(path); err == nil {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return files, nil
}
