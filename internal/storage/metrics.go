package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/keiryo/internal/model"
)

// UpsertMetric writes one canonical metric. A metric_id maps to at most one
// row: re-delivery of the same ID overwrites instead of duplicating.
func (db *DB) UpsertMetric(ctx context.Context, m model.Metric) error {
	meta := m.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO performance_metrics
		     (metric_id, agent_id, agent_type, kind, value, unit, recorded_at, task_id, provider, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
		 ON CONFLICT (metric_id) DO UPDATE SET
		     agent_id = EXCLUDED.agent_id,
		     agent_type = EXCLUDED.agent_type,
		     kind = EXCLUDED.kind,
		     value = EXCLUDED.value,
		     unit = EXCLUDED.unit,
		     recorded_at = EXCLUDED.recorded_at,
		     task_id = EXCLUDED.task_id,
		     provider = EXCLUDED.provider,
		     metadata = EXCLUDED.metadata`,
		m.ID, m.AgentID, m.AgentType, m.Kind, m.Value, m.Unit, m.RecordedAt, m.TaskID, m.Provider, meta,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert metric: %w", err)
	}
	return nil
}

// CountMetrics returns the total number of stored metric rows.
func (db *DB) CountMetrics(ctx context.Context) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM performance_metrics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count metrics: %w", err)
	}
	return n, nil
}

// ListMetricsSince returns metrics recorded at or after the cutoff,
// newest first, up to limit rows.
func (db *DB) ListMetricsSince(ctx context.Context, since time.Time, limit int) ([]model.Metric, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT metric_id, agent_id, agent_type, kind, value, unit, recorded_at,
		        COALESCE(task_id, ''), COALESCE(provider, ''), metadata
		 FROM performance_metrics
		 WHERE recorded_at >= $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list metrics: %w", err)
	}
	defer rows.Close()

	var out []model.Metric
	for rows.Next() {
		var m model.Metric
		if err := rows.Scan(
			&m.ID, &m.AgentID, &m.AgentType, &m.Kind, &m.Value, &m.Unit,
			&m.RecordedAt, &m.TaskID, &m.Provider, &m.Metadata,
		); err != nil {
			return nil, fmt.Errorf("storage: scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
