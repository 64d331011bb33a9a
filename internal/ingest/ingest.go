// Package ingest pulls supplemental sources (Reddit, NWS alerts, Facebook
// pages) into the article store, where they join the e-edition pipeline at
// the extracted stage.
package ingest

import (
	"context"
	"time"

	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

// Result counts one ingestion pass for one source identifier.
type Result struct {
	Found      int `json:"found"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
}

func (r *Result) add(other Result) {
	r.Found += other.Found
	r.New += other.New
	r.Duplicates += other.Duplicates
}

// storeArticles merges a batch into the article store and records one
// processing_history row for the pass.
func storeArticles(ctx context.Context, articles []core.Article,
	repo persistence.ArticleRepository, history persistence.HistoryRepository,
	sourceType, identifier string, started time.Time) (Result, error) {

	result := Result{Found: len(articles)}
	for i := range articles {
		_, created, err := repo.InsertOrMerge(ctx, &articles[i])
		if err != nil {
			return result, err
		}
		if created {
			result.New++
		} else {
			result.Duplicates++
		}
	}

	if history != nil {
		h := &core.ProcessingHistory{
			DateProcessed:    started.UTC().Truncate(24 * time.Hour),
			SourceType:       sourceType,
			SourceIdentifier: identifier,
			ArticlesFound:    result.Found,
			ArticlesNew:      result.New,
			ArticlesDup:      result.Duplicates,
			Status:           "completed",
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		}
		if err := history.Upsert(ctx, h); err != nil {
			logger.Warn("Failed to record ingestion history",
				"source", identifier, "error", err)
		}
	}

	logger.Info("Stored ingested articles",
		"source", identifier, "found", result.Found,
		"new", result.New, "duplicates", result.Duplicates)
	return result, nil
}
