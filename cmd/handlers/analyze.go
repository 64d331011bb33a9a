package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/analytics"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Roll up daily metrics and compute trending topics",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("date", "", "day to analyze (YYYY-MM-DD, default today)")
	analyzeCmd.Flags().Int("top", 10, "how many trending topics to print")
	return analyzeCmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	dateStr, _ := cmd.Flags().GetString("date")
	day, err := parseDateFlag(dateStr)
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runner := analytics.NewRunner(db.Metrics())
	if err := runner.Run(cmd.Context(), day); err != nil {
		return fmt.Errorf("analytics run failed: %w", err)
	}

	trending, err := runner.Trending(cmd.Context(), day, top)
	if err != nil {
		return fmt.Errorf("failed to load trending topics: %w", err)
	}

	fmt.Printf("Trending topics for %s:\n", day.Format("2006-01-02"))
	if len(trending) == 0 {
		fmt.Println("  (no topics above baseline)")
		return nil
	}
	for i, item := range trending {
		fmt.Printf("  %2d. [%s] %-30s z=%+.2f score=%.1f\n", i+1, item.Kind, item.Key, item.ZScore, item.Score)
	}
	return nil
}
