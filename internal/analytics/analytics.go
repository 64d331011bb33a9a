// Package analytics drives the daily metric aggregation, trending z-scores,
// and baseline forecasts over the article store.
package analytics

import (
	"context"
	"fmt"
	"time"

	"swvanews/internal/core"
	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

const (
	// DefaultAggregateDays re-aggregates a trailing window so late
	// extractions are counted.
	DefaultAggregateDays = 3
	// DefaultTrendingWindow is the trailing-day window for z-scores.
	DefaultTrendingWindow = 7
	// DefaultForecastHorizon is the number of days forecast per key.
	DefaultForecastHorizon = 7
	// DefaultForecastTopN limits forecasting to the busiest keys.
	DefaultForecastTopN = 5
)

// Zscore computes (current - mean) / max(std, 1.0). The floor keeps flat
// histories from exploding the score.
func Zscore(current, mean, std float64) float64 {
	if std < 1.0 {
		std = 1.0
	}
	return (current - mean) / std
}

// Runner orchestrates one analytics pass.
type Runner struct {
	metrics        persistence.MetricsRepository
	AggregateDays  int
	TrendingWindow int
	Horizon        int
	TopN           int
}

// NewRunner wires a runner with the default windows.
func NewRunner(metrics persistence.MetricsRepository) *Runner {
	return &Runner{
		metrics:        metrics,
		AggregateDays:  DefaultAggregateDays,
		TrendingWindow: DefaultTrendingWindow,
		Horizon:        DefaultForecastHorizon,
		TopN:           DefaultForecastTopN,
	}
}

// Run aggregates the trailing days, recomputes trending for day, and
// refreshes forecasts for tags and topics.
func (r *Runner) Run(ctx context.Context, day time.Time) error {
	day = day.Truncate(24 * time.Hour)

	for offset := r.AggregateDays - 1; offset >= 0; offset-- {
		target := day.AddDate(0, 0, -offset)
		if err := r.metrics.AggregateDaily(ctx, target); err != nil {
			return fmt.Errorf("failed to aggregate metrics for %s: %w", target.Format("2006-01-02"), err)
		}
	}

	if err := r.metrics.ComputeTrending(ctx, day, r.TrendingWindow); err != nil {
		return fmt.Errorf("failed to compute trending: %w", err)
	}

	for _, kind := range []string{core.KindTag, core.KindTopic} {
		if err := r.metrics.ComputeForecasts(ctx, kind, r.TopN, r.Horizon); err != nil {
			return fmt.Errorf("failed to compute %s forecasts: %w", kind, err)
		}
	}

	logger.Info("Analytics pass complete",
		"day", day.Format("2006-01-02"),
		"aggregate_days", r.AggregateDays,
		"window", r.TrendingWindow)
	return nil
}

// Trending returns the day's top trending items.
func (r *Runner) Trending(ctx context.Context, day time.Time, limit int) ([]core.TrendingItem, error) {
	return r.metrics.Trending(ctx, day.Truncate(24*time.Hour), limit)
}
