package storage

import (
	"context"
	"fmt"
	"time"
)

// PruneCount holds per-table deleted-row counts for one retention pass.
type PruneCount struct {
	Metrics  int64 `json:"metrics"`
	Timeline int64 `json:"timeline"`
	Alerts   int64 `json:"alerts"`
}

// Total returns the number of rows removed across all tables.
func (c PruneCount) Total() int64 {
	return c.Metrics + c.Timeline + c.Alerts
}

// PruneExpired deletes metric and timeline rows older than the cutoff, and
// alert rows older than the cutoff that are resolved. Unresolved alerts are
// never auto-deleted regardless of age. Deletes run in batches to keep
// individual statements short.
func (db *DB) PruneExpired(ctx context.Context, cutoff time.Time, batchSize int) (PruneCount, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total PruneCount

	n, err := db.pruneBatched(ctx, batchSize,
		`DELETE FROM performance_metrics WHERE metric_id IN (
		     SELECT metric_id FROM performance_metrics WHERE recorded_at < $1 LIMIT $2
		 )`, cutoff)
	if err != nil {
		return total, fmt.Errorf("storage: prune metrics: %w", err)
	}
	total.Metrics = n

	n, err = db.pruneBatched(ctx, batchSize,
		`DELETE FROM task_execution_timeline WHERE task_id IN (
		     SELECT task_id FROM task_execution_timeline WHERE created_at < $1 LIMIT $2
		 )`, cutoff)
	if err != nil {
		return total, fmt.Errorf("storage: prune timeline: %w", err)
	}
	total.Timeline = n

	n, err = db.pruneBatched(ctx, batchSize,
		`DELETE FROM alerts WHERE alert_id IN (
		     SELECT alert_id FROM alerts WHERE created_at < $1 AND resolved LIMIT $2
		 )`, cutoff)
	if err != nil {
		return total, fmt.Errorf("storage: prune alerts: %w", err)
	}
	total.Alerts = n

	return total, nil
}

func (db *DB) pruneBatched(ctx context.Context, batchSize int, query string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		tag, err := db.pool.Exec(ctx, query, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
	}
}
