package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"swvanews/internal/core"
)

type postgresHistoryRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresHistoryRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresHistoryRepo) Upsert(ctx context.Context, h *core.ProcessingHistory) error {
	err := r.query().QueryRowContext(ctx, `
		INSERT INTO processing_history (date_processed, source_type, source_identifier,
			articles_found, articles_new, articles_duplicate, status, error_message,
			processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (date_processed, source_type, source_identifier) DO UPDATE SET
			articles_found = EXCLUDED.articles_found,
			articles_new = EXCLUDED.articles_new,
			articles_duplicate = EXCLUDED.articles_duplicate,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			processing_time_ms = EXCLUDED.processing_time_ms
		RETURNING id`,
		h.DateProcessed, h.SourceType, h.SourceIdentifier,
		h.ArticlesFound, h.ArticlesNew, h.ArticlesDup,
		nullString(h.Status), nullString(h.ErrorMessage), h.ProcessingTimeMs,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert processing history for %s: %w", h.SourceIdentifier, err)
	}
	return nil
}

func (r *postgresHistoryRepo) Stats(ctx context.Context, days int) (*HistoryStats, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT date_processed, source_type,
		       SUM(articles_found), SUM(articles_new), SUM(articles_duplicate)
		FROM processing_history
		WHERE date_processed >= CURRENT_DATE - make_interval(days => $1)
		GROUP BY date_processed, source_type
		ORDER BY date_processed DESC, source_type`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}
	defer rows.Close()

	stats := &HistoryStats{}
	for rows.Next() {
		var row DailyHistoryRow
		if err := rows.Scan(&row.DateProcessed, &row.SourceType,
			&row.Found, &row.New, &row.Duplicates); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		stats.TotalFound += row.Found
		stats.TotalNew += row.New
		stats.TotalDuplicates += row.Duplicates
		stats.Daily = append(stats.Daily, row)
	}
	return stats, rows.Err()
}
