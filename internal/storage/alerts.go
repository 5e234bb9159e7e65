package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/keiryo/internal/model"
)

// InsertAlert appends one alert row with insert-or-ignore semantics.
// Alert IDs are deterministic over (rule, agent, dedup bucket), so re-firing
// the identical alert inside one dedup window is a no-op. Returns true when
// a new row was created.
func (db *DB) InsertAlert(ctx context.Context, a model.Alert) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO alerts
		     (alert_id, level, title, description, metric_kind, threshold_value,
		      actual_value, agent_id, created_at, resolved, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, NULL)
		 ON CONFLICT (alert_id) DO NOTHING`,
		a.ID, a.Level, a.Title, a.Description, a.MetricKind,
		a.ThresholdValue, a.ActualValue, a.AgentID, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("storage: insert alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResolveAlert transitions one alert OPEN → RESOLVED. RESOLVED is terminal:
// resolving twice returns ErrAlreadyResolved, unknown IDs return ErrNotFound.
func (db *DB) ResolveAlert(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE alerts SET resolved = true, resolved_at = now()
		 WHERE alert_id = $1 AND NOT resolved`,
		id,
	)
	if err != nil {
		return fmt.Errorf("storage: resolve alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM alerts WHERE alert_id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("storage: check alert: %w", err)
		}
		if exists {
			return ErrAlreadyResolved
		}
		return ErrNotFound
	}
	return nil
}

// ListActiveAlerts returns unresolved alerts, newest first, up to limit rows.
func (db *DB) ListActiveAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT alert_id, level, title, description, metric_kind, threshold_value,
		        actual_value, agent_id, created_at, resolved, resolved_at
		 FROM alerts
		 WHERE NOT resolved
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list active alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListAlertsForAgent returns all alerts for one agent, newest first.
func (db *DB) ListAlertsForAgent(ctx context.Context, agentID string) ([]model.Alert, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT alert_id, level, title, description, metric_kind, threshold_value,
		        actual_value, agent_id, created_at, resolved, resolved_at
		 FROM alerts
		 WHERE agent_id = $1
		 ORDER BY created_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

type alertRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAlerts(rows alertRows) ([]model.Alert, error) {
	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(
			&a.ID, &a.Level, &a.Title, &a.Description, &a.MetricKind,
			&a.ThresholdValue, &a.ActualValue, &a.AgentID, &a.CreatedAt,
			&a.Resolved, &a.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
