package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"swvanews/internal/core"
)

type postgresMetricsRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresMetricsRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// AggregateDaily recomputes the daily_metrics rows for one day across all
// metric kinds. Re-running a day overwrites its prior aggregates.
func (r *postgresMetricsRepo) AggregateDaily(ctx context.Context, day time.Time) error {
	statements := []struct {
		kind string
		sql  string
	}{
		{core.KindSection, `
			INSERT INTO daily_metrics (metric_date, kind, key, count, sum_score)
			SELECT $1::date, 'section', COALESCE(NULLIF(section, ''), 'General'), COUNT(*), 0
			FROM articles WHERE date_extracted::date = $1::date
			GROUP BY 3
			ON CONFLICT (metric_date, kind, key) DO UPDATE SET
				count = EXCLUDED.count, sum_score = EXCLUDED.sum_score`},
		{core.KindPublication, `
			INSERT INTO daily_metrics (metric_date, kind, key, count, sum_score)
			SELECT $1::date, 'publication',
			       COALESCE(metadata->>'publication', source_type), COUNT(*), 0
			FROM articles WHERE date_extracted::date = $1::date
			GROUP BY 3
			ON CONFLICT (metric_date, kind, key) DO UPDATE SET
				count = EXCLUDED.count, sum_score = EXCLUDED.sum_score`},
		{core.KindTag, `
			INSERT INTO daily_metrics (metric_date, kind, key, count, sum_score)
			SELECT $1::date, 'tag', t.tag, COUNT(*), 0
			FROM article_tags t
			JOIN articles a ON a.id = t.article_id
			WHERE a.date_extracted::date = $1::date
			GROUP BY 3
			ON CONFLICT (metric_date, kind, key) DO UPDATE SET
				count = EXCLUDED.count, sum_score = EXCLUDED.sum_score`},
		{core.KindTopic, `
			INSERT INTO daily_metrics (metric_date, kind, key, count, sum_score)
			SELECT $1::date, 'topic', tp.label, COUNT(*), SUM(at.score)
			FROM article_topics at
			JOIN topics tp ON tp.id = at.topic_id
			JOIN articles a ON a.id = at.article_id
			WHERE a.date_extracted::date = $1::date
			GROUP BY 3
			ON CONFLICT (metric_date, kind, key) DO UPDATE SET
				count = EXCLUDED.count, sum_score = EXCLUDED.sum_score`},
		{core.KindEntity, `
			INSERT INTO daily_metrics (metric_date, kind, key, count, sum_score)
			SELECT $1::date, 'entity', e.name, COUNT(*), 0
			FROM article_entities ae
			JOIN entities e ON e.id = ae.entity_id
			JOIN articles a ON a.id = ae.article_id
			WHERE a.date_extracted::date = $1::date
			GROUP BY 3
			ON CONFLICT (metric_date, kind, key) DO UPDATE SET
				count = EXCLUDED.count, sum_score = EXCLUDED.sum_score`},
	}

	for _, st := range statements {
		if _, err := r.query().ExecContext(ctx, st.sql, day); err != nil {
			return fmt.Errorf("failed to aggregate %s metrics: %w", st.kind, err)
		}
	}
	return nil
}

// computeTrendingSQL scores each key's current-day count against its
// trailing window: score is the count's deviation from the trailing mean,
// zscore divides that deviation by the trailing standard deviation floored
// at 1.0 so near-constant series do not explode. Keys with no trailing
// history score against a zero mean, so a brand-new key can trend on its
// first day.
const computeTrendingSQL = `
	WITH current AS (
		SELECT kind, key, count::double precision AS cur
		FROM daily_metrics WHERE metric_date = $1::date
	),
	history AS (
		SELECT kind, key,
		       AVG(count::double precision) AS mean_c,
		       COALESCE(STDDEV_POP(count::double precision), 0.0) AS std_c,
		       COUNT(*) AS days
		FROM daily_metrics
		WHERE metric_date >= $1::date - make_interval(days => $2)
		  AND metric_date < $1::date
		GROUP BY kind, key
	)
	INSERT INTO trending_items (metric_date, kind, key, score, zscore, win_size, delta, details)
	SELECT $1::date, c.kind, c.key,
	       c.cur - COALESCE(h.mean_c, 0.0),
	       (c.cur - COALESCE(h.mean_c, 0.0)) / GREATEST(COALESCE(h.std_c, 0.0), 1.0),
	       $2,
	       c.cur - COALESCE(h.mean_c, 0.0),
	       json_build_object('mean', COALESCE(h.mean_c, 0.0),
	                         'std', COALESCE(h.std_c, 0.0),
	                         'days', COALESCE(h.days, 0))
	FROM current c
	LEFT JOIN history h ON h.kind = c.kind AND h.key = c.key
	ON CONFLICT (metric_date, kind, key) DO UPDATE SET
		score = EXCLUDED.score,
		zscore = EXCLUDED.zscore,
		win_size = EXCLUDED.win_size,
		delta = EXCLUDED.delta,
		details = EXCLUDED.details`

func (r *postgresMetricsRepo) ComputeTrending(ctx context.Context, day time.Time, window int) error {
	if _, err := r.query().ExecContext(ctx, computeTrendingSQL, day, window); err != nil {
		return fmt.Errorf("failed to compute trending items: %w", err)
	}
	return nil
}

// ComputeForecasts writes a flat baseline forecast for the top keys of one
// kind: each future day's yhat is the trailing seven-day mean.
func (r *postgresMetricsRepo) ComputeForecasts(ctx context.Context, kind string, topN, horizon int) error {
	rows, err := r.query().QueryContext(ctx, `
		SELECT key, AVG(count::double precision) AS mean7
		FROM daily_metrics
		WHERE kind = $1 AND metric_date >= CURRENT_DATE - INTERVAL '7 days'
		GROUP BY key
		ORDER BY SUM(count) DESC
		LIMIT $2`, kind, topN)
	if err != nil {
		return fmt.Errorf("failed to query forecast baselines: %w", err)
	}
	defer rows.Close()

	type baseline struct {
		key  string
		mean float64
	}
	var baselines []baseline
	for rows.Next() {
		var b baseline
		if err := rows.Scan(&b.key, &b.mean); err != nil {
			return fmt.Errorf("failed to scan forecast baseline: %w", err)
		}
		baselines = append(baselines, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, b := range baselines {
		points := make([]core.ForecastPoint, 0, horizon)
		for i := 1; i <= horizon; i++ {
			points = append(points, core.ForecastPoint{
				Date: today.AddDate(0, 0, i).Format("2006-01-02"),
				YHat: b.mean,
			})
		}
		buf, err := json.Marshal(points)
		if err != nil {
			return fmt.Errorf("failed to marshal forecast for %q: %w", b.key, err)
		}
		if _, err := r.query().ExecContext(ctx, `
			INSERT INTO trend_forecasts (date_generated, kind, key, horizon_days, forecast)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (date_generated, kind, key) DO UPDATE SET
				horizon_days = EXCLUDED.horizon_days,
				forecast = EXCLUDED.forecast`,
			today, kind, b.key, horizon, buf); err != nil {
			return fmt.Errorf("failed to upsert forecast for %q: %w", b.key, err)
		}
	}
	return nil
}

func (r *postgresMetricsRepo) Trending(ctx context.Context, day time.Time, limit int) ([]core.TrendingItem, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT metric_date, kind, key, score, zscore, delta, win_size, details
		FROM trending_items
		WHERE metric_date = $1::date
		ORDER BY zscore DESC
		LIMIT $2`, day, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending items: %w", err)
	}
	defer rows.Close()

	var items []core.TrendingItem
	for rows.Next() {
		var item core.TrendingItem
		var details []byte
		if err := rows.Scan(&item.MetricDate, &item.Kind, &item.Key,
			&item.Score, &item.ZScore, &item.Delta, &item.WinSize, &details); err != nil {
			return nil, fmt.Errorf("failed to scan trending item: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &item.Details); err != nil {
				return nil, fmt.Errorf("failed to decode trending details: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
