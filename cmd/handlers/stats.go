package handlers

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show processing stats for the last few days",
		RunE:  runStats,
	}
	statsCmd.Flags().Int("days", 7, "how many days of history to include")
	return statsCmd
}

func runStats(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.History().Stats(cmd.Context(), days)
	if err != nil {
		return fmt.Errorf("failed to load processing stats: %w", err)
	}
	counts, err := db.Articles().CountsByStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load status counts: %w", err)
	}

	fmt.Printf("Last %d days: %d found, %d new, %d duplicates merged\n",
		days, stats.TotalFound, stats.TotalNew, stats.TotalDuplicates)

	if len(stats.Daily) > 0 {
		fmt.Println("\nBy day and source:")
		for _, row := range stats.Daily {
			fmt.Printf("  %s  %-12s found=%-4d new=%-4d dup=%d\n",
				row.DateProcessed.Format("2006-01-02"), row.SourceType,
				row.Found, row.New, row.Duplicates)
		}
	}

	if len(counts) > 0 {
		statuses := make([]string, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)

		fmt.Println("\nArticles by status:")
		for _, status := range statuses {
			fmt.Printf("  %-12s %d\n", status, counts[status])
		}
	}
	return nil
}
