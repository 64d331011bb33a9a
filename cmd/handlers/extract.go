package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/cache"
	"swvanews/internal/extract"
	"swvanews/internal/persistence"
)

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract articles from cached edition pages",
		RunE:  runExtract,
	}
	extractCmd.Flags().String("date", "", "edition date (YYYY-MM-DD, default today)")
	return extractCmd
}

func newExtractProcessor(store *cache.ObjectCache, db *persistence.PostgresDB) *extract.Processor {
	return extract.NewProcessor(store, db.Articles(), db.History())
}

func runExtract(cmd *cobra.Command, args []string) error {
	dateStr, _ := cmd.Flags().GetString("date")
	day, err := parseDateFlag(dateStr)
	if err != nil {
		return err
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

	result, err := newExtractProcessor(store, db).ProcessDate(cmd.Context(), day)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	fmt.Printf("Edition %s: %d files processed (%d failed)\n",
		result.EditionDate, result.FilesTotal, result.FilesFailed)
	fmt.Printf("Articles: %d found, %d new, %d duplicates merged\n",
		result.ArticlesFound, result.ArticlesNew, result.ArticlesDup)
	return nil
}
