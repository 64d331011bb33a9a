package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
)

// NewCacheCmd creates the cache command with its subcommands.
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the page cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached edition dates and page counts",
		RunE:  runCacheStats,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete cached pages older than the retention window",
		RunE:  runCacheCleanup,
	}
	cleanupCmd.Flags().Int("days", 0, "retention in days (default from config)")

	cacheCmd.AddCommand(statsCmd)
	cacheCmd.AddCommand(cleanupCmd)
	return cacheCmd
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := getCache(cmd)
	if err != nil {
		return err
	}

	dates, err := store.ListEditionDates(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list cached editions: %w", err)
	}
	if len(dates) == 0 {
		fmt.Println("Cache is empty.")
		return nil
	}

	fmt.Printf("Cached editions (%d dates):\n", len(dates))
	for _, date := range dates {
		keys, err := store.ListKeys(cmd.Context(), date+"/")
		if err != nil {
			return fmt.Errorf("failed to list keys for %s: %w", date, err)
		}
		fmt.Printf("  %s  %d pages\n", date, len(keys))
	}
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	store, err := getCache(cmd)
	if err != nil {
		return err
	}

	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		days = config.Get().App.CacheRetentionDays
	}
	if days <= 0 {
		days = 7
	}

	removed, err := store.CleanupOlderThan(cmd.Context(), days)
	if err != nil {
		return fmt.Errorf("cache cleanup failed: %w", err)
	}
	fmt.Printf("Removed %d objects older than %d days.\n", removed, days)
	return nil
}
