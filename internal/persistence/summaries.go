package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"swvanews/internal/core"
)

type postgresSummaryRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresSummaryRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresSummaryRepo) Upsert(ctx context.Context, summary *core.Summary) error {
	if summary.SummaryType == "" {
		summary.SummaryType = "brief"
	}
	keyPoints, err := json.Marshal(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to encode key points: %w", err)
	}
	err = r.query().QueryRowContext(ctx, `
		INSERT INTO summaries (article_id, summary_type, summary_text, key_points,
			sentiment, confidence_score, model_used, tokens_used, generation_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (article_id, summary_type) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			key_points = EXCLUDED.key_points,
			sentiment = EXCLUDED.sentiment,
			confidence_score = EXCLUDED.confidence_score,
			model_used = EXCLUDED.model_used,
			tokens_used = EXCLUDED.tokens_used,
			generation_time_ms = EXCLUDED.generation_time_ms
		RETURNING id, date_created`,
		summary.ArticleID, summary.SummaryType, summary.SummaryText, keyPoints,
		nullString(summary.Sentiment), summary.ConfidenceScore,
		nullString(summary.ModelUsed), summary.TokensUsed, summary.GenerationTimeMs,
	).Scan(&summary.ID, &summary.DateCreated)
	if err != nil {
		return fmt.Errorf("failed to upsert summary for article %d: %w", summary.ArticleID, err)
	}
	return nil
}

const summaryColumns = `id, article_id, summary_type, summary_text, key_points,
	sentiment, COALESCE(confidence_score, 0), model_used,
	COALESCE(tokens_used, 0), COALESCE(generation_time_ms, 0), date_created`

func scanSummary(row rowScanner) (*core.Summary, error) {
	var s core.Summary
	var keyPoints []byte
	var sentiment, model sql.NullString
	err := row.Scan(&s.ID, &s.ArticleID, &s.SummaryType, &s.SummaryText, &keyPoints,
		&sentiment, &s.ConfidenceScore, &model, &s.TokensUsed, &s.GenerationTimeMs, &s.DateCreated)
	if err != nil {
		return nil, err
	}
	if len(keyPoints) > 0 {
		if err := json.Unmarshal(keyPoints, &s.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to decode key points for summary %d: %w", s.ID, err)
		}
	}
	s.Sentiment = sentiment.String
	s.ModelUsed = model.String
	return &s, nil
}

func (r *postgresSummaryRepo) GetByArticle(ctx context.Context, articleID int64, summaryType string) (*core.Summary, error) {
	row := r.query().QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM summaries WHERE article_id = $1 AND summary_type = $2`,
		articleID, summaryType)
	s, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for article %d: %w", articleID, err)
	}
	return s, nil
}

func (r *postgresSummaryRepo) GetForArticles(ctx context.Context, articleIDs []int64) (map[int64]core.Summary, error) {
	out := make(map[int64]core.Summary)
	if len(articleIDs) == 0 {
		return out, nil
	}
	rows, err := r.query().QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM summaries
		WHERE article_id = ANY($1) AND summary_type = 'brief'`,
		pq.Array(articleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out[s.ArticleID] = *s
	}
	return out, rows.Err()
}
