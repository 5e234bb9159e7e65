package storage

import (
	"context"
	"fmt"

	"github.com/ashita-ai/keiryo/internal/model"
)

// InsertTimeline records one task execution in the durable timeline.
// task_id is the primary key; re-delivery of the same execution upserts, so
// sum(agent.total_tasks) == count(distinct task_id) holds under
// at-least-once delivery.
func (db *DB) InsertTimeline(ctx context.Context, rec model.TaskTimelineRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO task_execution_timeline
		     (task_id, agent_id, agent_type, task_name, status, started_at, completed_at,
		      duration_ms, tokens_used, cost, provider, success, error_message,
		      files_created, files_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)
		 ON CONFLICT (task_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     completed_at = EXCLUDED.completed_at,
		     duration_ms = EXCLUDED.duration_ms,
		     tokens_used = EXCLUDED.tokens_used,
		     cost = EXCLUDED.cost,
		     success = EXCLUDED.success,
		     error_message = EXCLUDED.error_message,
		     files_created = EXCLUDED.files_created,
		     files_modified = EXCLUDED.files_modified`,
		rec.TaskID, rec.AgentID, rec.AgentType, rec.TaskName, rec.Status,
		rec.StartedAt, rec.CompletedAt, rec.DurationMs, rec.TokensUsed, rec.Cost,
		rec.Provider, rec.Success, rec.ErrorMessage, rec.FilesCreated, rec.FilesModified,
	)
	if err != nil {
		return fmt.Errorf("storage: insert timeline: %w", err)
	}
	return nil
}

// CountTimeline returns the number of distinct task executions recorded.
func (db *DB) CountTimeline(ctx context.Context) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_execution_timeline`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count timeline: %w", err)
	}
	return n, nil
}

// GetTimeline fetches one timeline record by task ID.
func (db *DB) GetTimeline(ctx context.Context, taskID string) (model.TaskTimelineRecord, error) {
	var rec model.TaskTimelineRecord
	var errMsg *string
	err := db.pool.QueryRow(ctx,
		`SELECT task_id, agent_id, agent_type, task_name, status, started_at, completed_at,
		        duration_ms, tokens_used, cost, provider, success, error_message,
		        files_created, files_modified
		 FROM task_execution_timeline WHERE task_id = $1`,
		taskID,
	).Scan(
		&rec.TaskID, &rec.AgentID, &rec.AgentType, &rec.TaskName, &rec.Status,
		&rec.StartedAt, &rec.CompletedAt, &rec.DurationMs, &rec.TokensUsed, &rec.Cost,
		&rec.Provider, &rec.Success, &errMsg, &rec.FilesCreated, &rec.FilesModified,
	)
	if err != nil {
		if isNoRows(err) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("storage: get timeline: %w", err)
	}
	if errMsg != nil {
		rec.ErrorMessage = *errMsg
	}
	return rec, nil
}
