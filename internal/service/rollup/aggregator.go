// Package rollup holds the periodic durable-state maintenance cycles:
// hourly aggregation with retention pruning, and reconciliation of the
// in-memory tracker into the summary tables.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/keiryo/internal/storage"
)

// pruneBatchSize bounds each retention DELETE so pruning never holds a
// long lock on a hot table.
const pruneBatchSize = 5000

// Aggregator folds raw metrics into hourly_performance rows and prunes
// data past the retention horizon.
type Aggregator struct {
	db        *storage.DB
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewAggregator creates an aggregator keeping retentionDays of history.
func NewAggregator(db *storage.DB, retentionDays int, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock. Returns the receiver for chaining.
func (a *Aggregator) WithNow(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Run performs one aggregation cycle: every fully elapsed hour since the
// aggregation marker is rolled up, then expired rows are pruned. Each
// hour's rollup is an idempotent upsert, so re-running after a partial
// failure converges.
func (a *Aggregator) Run(ctx context.Context) error {
	now := a.now().UTC()

	marker, err := a.db.LastAggregatedHour(ctx, now)
	if err != nil {
		return fmt.Errorf("rollup: read marker: %w", err)
	}

	currentHour := now.Truncate(time.Hour)
	for hour := marker.Add(time.Hour); hour.Before(currentHour); hour = hour.Add(time.Hour) {
		rows, err := a.db.UpsertHourlyAggregates(ctx, hour)
		if err != nil {
			return fmt.Errorf("rollup: aggregate hour %s: %w", hour.Format(time.RFC3339), err)
		}
		if rows > 0 {
			a.logger.Info("hour aggregated", "hour", hour, "agent_types", rows)
		}
	}

	counts, err := a.db.PruneExpired(ctx, now.Add(-a.retention), pruneBatchSize)
	if err != nil {
		return fmt.Errorf("rollup: prune: %w", err)
	}
	if counts.Total() > 0 {
		a.logger.Info("expired rows pruned",
			"metrics", counts.Metrics,
			"timeline", counts.Timeline,
			"alerts", counts.Alerts,
		)
	}
	return nil
}
