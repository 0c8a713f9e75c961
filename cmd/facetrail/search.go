package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search <file>",
	Short: "Find indexed faces similar to the face in an image or video",
	Long: `Detect the first face in the query file and list the indexed faces whose
cosine similarity is at or above the threshold, best match first.

Results are cached by query content and parameters; a repeated query is
answered from the cache.

Examples:
  facetrail search ./query.jpg
  facetrail search ./query.jpg --threshold 0.75 --top-k 5
  facetrail search ./query.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Float64("threshold", domain.DefaultThreshold, "Minimum cosine similarity in [0, 1]")
	searchCmd.Flags().Int("top-k", domain.DefaultTopK, fmt.Sprintf("Maximum number of results (1-%d)", domain.MaxTopK))
	searchCmd.Flags().Bool("json", false, "Output the raw response as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	topK, _ := cmd.Flags().GetInt("top-k")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if _, err := domain.MediaTypeFromPath(args[0]); err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	q := domain.SearchQuery{Media: data, Threshold: threshold, TopK: topK}
	if err := q.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Search.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if res.CacheHit {
		fmt.Fprintln(os.Stderr, "(cached result)")
	}

	if jsonOutput {
		var out bytes.Buffer
		if err := json.Indent(&out, res.Body, "", "  "); err != nil {
			return fmt.Errorf("format response: %w", err)
		}
		out.WriteByte('\n')
		_, err := out.WriteTo(os.Stdout)
		return err
	}

	resp, err := res.Decode()
	if err != nil {
		return err
	}
	if resp.Status != domain.SearchStatusSuccess {
		return fmt.Errorf("search failed: %s", resp.Message)
	}
	if resp.QueryFace != nil {
		fmt.Printf("Query face at %v (quality %.2f)\n", resp.QueryFace.BBox, resp.QueryFace.QualityScore)
	}
	if resp.TotalResults == 0 {
		fmt.Println("No similar faces found")
		return nil
	}

	names := make(map[uuid.UUID]string)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSIMILARITY\tMEDIA\tBBOX\tTIME\tFACE")
	for i, m := range resp.Results {
		name, ok := names[m.MediaID]
		if !ok {
			name = m.MediaID.String()
			if item, err := svc.Media.GetByID(ctx, m.MediaID); err == nil {
				name = item.OriginalName
			}
			names[m.MediaID] = name
		}
		ts := "-"
		if m.Timestamp != nil {
			ts = fmt.Sprintf("%.1fs", *m.Timestamp)
		}
		fmt.Fprintf(w, "%d\t%.4f\t%s\t%v\t%s\t%s\n", i+1, m.Similarity, name, m.BBox, ts, m.FaceID)
	}
	return w.Flush()
}
