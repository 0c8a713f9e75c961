package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/search"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show media, face, job and cache totals",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Stats.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if cs, err := svc.Cache.Stats(ctx, search.CachePattern); err != nil {
		logger.Warn("cache stats unavailable", "error", err)
	} else {
		stats.CacheEntries = cs.Entries
	}

	if jsonOutput {
		return printJSON(stats)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Faces\t%d\n", stats.TotalFaces)
	fmt.Fprintf(w, "Searches\t%d\n", stats.TotalSearches)
	fmt.Fprintf(w, "Cached searches\t%d\n", stats.CacheEntries)
	for _, k := range sortedKeys(stats.MediaByType) {
		fmt.Fprintf(w, "Media (%s)\t%d\n", k, stats.MediaByType[k])
	}
	for _, k := range sortedKeys(stats.MediaByStatus) {
		fmt.Fprintf(w, "Media %s\t%d\n", k, stats.MediaByStatus[k])
	}
	for _, k := range sortedKeys(stats.JobsByState) {
		fmt.Fprintf(w, "Jobs %s\t%d\n", k, stats.JobsByState[k])
	}
	return w.Flush()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
