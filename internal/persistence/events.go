package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"swvanews/internal/core"
)

type postgresEventRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresEventRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresEventRepo) ReplaceForArticle(ctx context.Context, articleID int64, events []core.ArticleEvent) error {
	if _, err := r.query().ExecContext(ctx,
		`DELETE FROM article_events WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("failed to clear events for article %d: %w", articleID, err)
	}

	for i := range events {
		ev := &events[i]
		var metaJSON []byte
		if ev.LocationMeta != nil {
			var err error
			if metaJSON, err = json.Marshal(ev.LocationMeta); err != nil {
				return fmt.Errorf("failed to marshal event location: %w", err)
			}
		}
		err := r.query().QueryRowContext(ctx, `
			INSERT INTO article_events (article_id, title, description, start_time,
				end_time, location_name, location_meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			articleID, ev.Title, nullString(ev.Description), ev.StartTime,
			nullTime(ev.EndTime), nullString(ev.LocationName), metaJSON,
		).Scan(&ev.ID)
		if err != nil {
			return fmt.Errorf("failed to insert event for article %d: %w", articleID, err)
		}
		ev.ArticleID = articleID
	}
	return nil
}

func (r *postgresEventRepo) ListUpcoming(ctx context.Context, limit int) ([]core.ArticleEvent, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT id, article_id, title, description, start_time, end_time,
		       location_name, location_meta
		FROM article_events
		WHERE start_time >= NOW()
		ORDER BY start_time ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []core.ArticleEvent
	for rows.Next() {
		var ev core.ArticleEvent
		var description, locationName sql.NullString
		var endTime sql.NullTime
		var metaJSON []byte
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &ev.Title, &description,
			&ev.StartTime, &endTime, &locationName, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Description = description.String
		ev.LocationName = locationName.String
		if endTime.Valid {
			t := endTime.Time
			ev.EndTime = &t
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.LocationMeta); err != nil {
				return nil, fmt.Errorf("failed to decode event location: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
