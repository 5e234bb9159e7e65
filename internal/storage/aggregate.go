package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/keiryo/internal/model"
)

// LastAggregatedHour returns the most recent hour_bucket in hourly_performance.
// When no rollups exist yet, the marker defaults to 24 hours before now so a
// fresh deployment backfills one day of history.
func (db *DB) LastAggregatedHour(ctx context.Context, now time.Time) (time.Time, error) {
	var marker *time.Time
	err := db.pool.QueryRow(ctx, `SELECT MAX(hour_bucket) FROM hourly_performance`).Scan(&marker)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: last aggregated hour: %w", err)
	}
	if marker == nil {
		return now.UTC().Add(-24 * time.Hour).Truncate(time.Hour), nil
	}
	return marker.UTC(), nil
}

// UpsertHourlyAggregates computes per-agent-type rollups for one fully-elapsed
// hour from the timeline table and upserts them. The computation is a pure
// function of the timeline rows in [hour, hour+1h), so re-running the same
// hour rewrites identical values instead of duplicating rows.
func (db *DB) UpsertHourlyAggregates(ctx context.Context, hour time.Time) (int64, error) {
	hour = hour.UTC().Truncate(time.Hour)
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO hourly_performance
		     (hour_bucket, agent_type, tasks_completed, success_rate, avg_response_ms, total_cost, total_tokens)
		 SELECT $1,
		        agent_type,
		        COUNT(*),
		        LEAST(100, GREATEST(0, COUNT(*) FILTER (WHERE success)::float8 / COUNT(*) * 100)),
		        COALESCE(AVG(duration_ms), 0),
		        COALESCE(SUM(cost), 0),
		        COALESCE(SUM(tokens_used), 0)
		 FROM task_execution_timeline
		 WHERE completed_at >= $1 AND completed_at < $2
		 GROUP BY agent_type
		 ON CONFLICT (hour_bucket, agent_type) DO UPDATE SET
		     tasks_completed = EXCLUDED.tasks_completed,
		     success_rate = EXCLUDED.success_rate,
		     avg_response_ms = EXCLUDED.avg_response_ms,
		     total_cost = EXCLUDED.total_cost,
		     total_tokens = EXCLUDED.total_tokens`,
		hour, hour.Add(time.Hour),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: upsert hourly aggregates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HourlyTrends returns rollup rows for the trailing window, oldest first.
func (db *DB) HourlyTrends(ctx context.Context, since time.Time) ([]model.HourlyAggregate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT hour_bucket, agent_type, tasks_completed, success_rate,
		        avg_response_ms, total_cost, total_tokens
		 FROM hourly_performance
		 WHERE hour_bucket >= $1
		 ORDER BY hour_bucket, agent_type`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: hourly trends: %w", err)
	}
	defer rows.Close()

	var out []model.HourlyAggregate
	for rows.Next() {
		var h model.HourlyAggregate
		if err := rows.Scan(
			&h.HourBucket, &h.AgentType, &h.TasksCompleted, &h.SuccessRate,
			&h.AvgResponseMs, &h.TotalCost, &h.TotalTokens,
		); err != nil {
			return nil, fmt.Errorf("storage: scan hourly trend: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AgentTypePerformance groups timeline rows by agent type over the trailing
// window, for the trends query's live (not yet rolled up) view.
func (db *DB) AgentTypePerformance(ctx context.Context, since time.Time) ([]model.AgentTypePerformance, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT agent_type,
		        COUNT(*),
		        LEAST(100, GREATEST(0, COUNT(*) FILTER (WHERE success)::float8 / COUNT(*) * 100)),
		        COALESCE(AVG(duration_ms), 0),
		        COALESCE(SUM(cost), 0),
		        COALESCE(SUM(tokens_used), 0)
		 FROM task_execution_timeline
		 WHERE completed_at >= $1
		 GROUP BY agent_type
		 ORDER BY agent_type`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: agent type performance: %w", err)
	}
	defer rows.Close()

	var out []model.AgentTypePerformance
	for rows.Next() {
		var p model.AgentTypePerformance
		if err := rows.Scan(
			&p.AgentType, &p.TasksCompleted, &p.SuccessRate,
			&p.AvgResponseMs, &p.TotalCost, &p.TotalTokens,
		); err != nil {
			return nil, fmt.Errorf("storage: scan agent type performance: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
