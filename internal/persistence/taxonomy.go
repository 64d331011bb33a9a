package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

type postgresTaxonomyRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresTaxonomyRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresTaxonomyRepo) SetTags(ctx context.Context, articleID int64, tags []string) error {
	if _, err := r.query().ExecContext(ctx,
		`DELETE FROM article_tags WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("failed to clear tags for article %d: %w", articleID, err)
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := r.query().ExecContext(ctx, `
			INSERT INTO article_tags (article_id, tag) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, articleID, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", tag, err)
		}
	}
	return nil
}

func (r *postgresTaxonomyRepo) SetEntities(ctx context.Context, articleID int64, entities []Entity) error {
	if _, err := r.query().ExecContext(ctx,
		`DELETE FROM article_entities WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("failed to clear entities for article %d: %w", articleID, err)
	}
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		var entityID int64
		err := r.query().QueryRowContext(ctx, `
			INSERT INTO entities (name, kind) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET kind = COALESCE(entities.kind, EXCLUDED.kind)
			RETURNING id`, e.Name, nullString(e.Kind)).Scan(&entityID)
		if err != nil {
			return fmt.Errorf("failed to upsert entity %q: %w", e.Name, err)
		}
		if _, err := r.query().ExecContext(ctx, `
			INSERT INTO article_entities (article_id, entity_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, articleID, entityID); err != nil {
			return fmt.Errorf("failed to link entity %q: %w", e.Name, err)
		}
	}
	return nil
}

func (r *postgresTaxonomyRepo) SetTopics(ctx context.Context, articleID int64, topics []TopicScore) error {
	if _, err := r.query().ExecContext(ctx,
		`DELETE FROM article_topics WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("failed to clear topics for article %d: %w", articleID, err)
	}
	for _, t := range topics {
		if t.Label == "" {
			continue
		}
		var topicID int64
		err := r.query().QueryRowContext(ctx, `
			INSERT INTO topics (label) VALUES ($1)
			ON CONFLICT (label) DO UPDATE SET label = EXCLUDED.label
			RETURNING id`, t.Label).Scan(&topicID)
		if err != nil {
			return fmt.Errorf("failed to upsert topic %q: %w", t.Label, err)
		}
		if _, err := r.query().ExecContext(ctx, `
			INSERT INTO article_topics (article_id, topic_id, score) VALUES ($1, $2, $3)
			ON CONFLICT (article_id, topic_id) DO UPDATE SET score = EXCLUDED.score`,
			articleID, topicID, t.Score); err != nil {
			return fmt.Errorf("failed to link topic %q: %w", t.Label, err)
		}
	}
	return nil
}
