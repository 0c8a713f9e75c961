package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Search cache management commands",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached search result",
	Long: `Cached results are not invalidated when new faces are indexed. Clear the
cache after a large ingestion so searches see the new faces immediately.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	svc, err := openServices(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.Search.ClearCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Printf("Deleted %d cached search results\n", n)
	return nil
}
