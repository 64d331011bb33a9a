package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swvanews/internal/logger"
)

// NewBackfillCmd creates the backfill command.
func NewBackfillCmd() *cobra.Command {
	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Download and extract a range of past edition dates",
		Long: `Backfill walks an inclusive date range oldest-first, running the
download and extract stages for each day. Per-day failures are logged
and skipped so one missing edition does not abort the range.`,
		RunE: runBackfill,
	}
	backfillCmd.Flags().String("start", "", "first edition date (YYYY-MM-DD, required)")
	backfillCmd.Flags().String("end", "", "last edition date (YYYY-MM-DD, default today)")
	backfillCmd.Flags().Bool("force", false, "re-download pages already in the cache")
	_ = backfillCmd.MarkFlagRequired("start")
	return backfillCmd
}

func runBackfill(cmd *cobra.Command, args []string) error {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	force, _ := cmd.Flags().GetBool("force")

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return fmt.Errorf("invalid start date %q; use YYYY-MM-DD", startStr)
	}
	end, err := parseDateFlag(endStr)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	store, err := getCache(cmd)
	if err != nil {
		return err
	}
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var days, failed int
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		days++
		dateStr := day.Format("2006-01-02")

		result, err := downloadEdition(cmd, store, day, force)
		if err != nil {
			failed++
			logger.Error("Backfill download failed", err, "date", dateStr)
			continue
		}
		if result.Successful == 0 && result.FromCache == 0 {
			failed++
			logger.Warn("Backfill found no pages", "date", dateStr)
			continue
		}

		extracted, err := newExtractProcessor(store, db).ProcessDate(cmd.Context(), day)
		if err != nil {
			failed++
			logger.Error("Backfill extraction failed", err, "date", dateStr)
			continue
		}
		fmt.Printf("%s: %d pages, %d articles (%d new)\n",
			dateStr, result.TotalPages, extracted.ArticlesFound, extracted.ArticlesNew)
	}

	fmt.Printf("Backfill complete: %d days processed, %d failed\n", days, failed)
	if failed == days {
		return fmt.Errorf("backfill failed for every date in range")
	}
	return nil
}
