package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ashita-ai/keiryo/internal/model"
)

// UpsertAgentSummary reconciles one agent's in-memory counters into the
// durable summary table. The summary is the restart rebuild source for the
// rolling tracker, so every reconcile cycle overwrites the full row.
func (db *DB) UpsertAgentSummary(ctx context.Context, s model.AgentStats) error {
	var lastActive *time.Time
	if !s.LastActive.IsZero() {
		lastActive = &s.LastActive
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_performance_summary
		     (agent_id, agent_type, total_tasks, successful_tasks, failed_tasks,
		      total_cost, total_tokens, avg_response_ms, last_active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (agent_id) DO UPDATE SET
		     agent_type = EXCLUDED.agent_type,
		     total_tasks = EXCLUDED.total_tasks,
		     successful_tasks = EXCLUDED.successful_tasks,
		     failed_tasks = EXCLUDED.failed_tasks,
		     total_cost = EXCLUDED.total_cost,
		     total_tokens = EXCLUDED.total_tokens,
		     avg_response_ms = EXCLUDED.avg_response_ms,
		     last_active = EXCLUDED.last_active,
		     updated_at = now()`,
		s.AgentID, s.AgentType, s.TotalTasks, s.SuccessfulTasks, s.FailedTasks,
		s.TotalCost, s.TotalTokens, s.AvgResponseMs, lastActive,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert agent summary: %w", err)
	}
	return nil
}

// ListAgentSummaries returns every reconciled agent summary row.
func (db *DB) ListAgentSummaries(ctx context.Context) ([]model.AgentStats, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT agent_id, agent_type, total_tasks, successful_tasks, failed_tasks,
		        total_cost, total_tokens, avg_response_ms, last_active
		 FROM agent_performance_summary
		 ORDER BY agent_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent summaries: %w", err)
	}
	defer rows.Close()

	var out []model.AgentStats
	for rows.Next() {
		var s model.AgentStats
		var lastActive *time.Time
		if err := rows.Scan(
			&s.AgentID, &s.AgentType, &s.TotalTasks, &s.SuccessfulTasks, &s.FailedTasks,
			&s.TotalCost, &s.TotalTokens, &s.AvgResponseMs, &lastActive,
		); err != nil {
			return nil, fmt.Errorf("storage: scan agent summary: %w", err)
		}
		if lastActive != nil {
			s.LastActive = *lastActive
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertProviderDay reconciles one provider's counters into its daily row.
// The (provider, date) composite key keeps a per-day history while the
// in-memory tracker only holds running totals.
func (db *DB) UpsertProviderDay(ctx context.Context, day time.Time, p model.ProviderStats) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO provider_performance
		     (provider, date, requests, errors, total_cost, avg_response_ms, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (provider, date) DO UPDATE SET
		     requests = EXCLUDED.requests,
		     errors = EXCLUDED.errors,
		     total_cost = EXCLUDED.total_cost,
		     avg_response_ms = EXCLUDED.avg_response_ms,
		     updated_at = now()`,
		p.Provider, day.UTC().Truncate(24*time.Hour), p.Requests, p.Errors, p.TotalCost, p.AvgResponseMs,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert provider day: %w", err)
	}
	return nil
}

// ListProviderTotals sums each provider's daily rows into running totals,
// weighting avg_response_ms by request count. Used to rebuild the rolling
// tracker's provider state on restart.
func (db *DB) ListProviderTotals(ctx context.Context) ([]model.ProviderStats, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT provider,
		        SUM(requests),
		        SUM(errors),
		        SUM(total_cost),
		        CASE WHEN SUM(requests) > 0
		             THEN SUM(avg_response_ms * requests) / SUM(requests)
		             ELSE 0 END
		 FROM provider_performance
		 GROUP BY provider
		 ORDER BY provider`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list provider totals: %w", err)
	}
	defer rows.Close()

	var out []model.ProviderStats
	for rows.Next() {
		var p model.ProviderStats
		if err := rows.Scan(&p.Provider, &p.Requests, &p.Errors, &p.TotalCost, &p.AvgResponseMs); err != nil {
			return nil, fmt.Errorf("storage: scan provider totals: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
