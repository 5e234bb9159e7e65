// Package alerts evaluates threshold rules over agent statistics and
// persists breaches as append-only alert rows.
//
// Rules run synchronously after each ingestion. Each rule is sample-size
// gated (except response time) so cold-start agents don't generate noise.
// Alert IDs are deterministic over (rule, agent, dedup bucket): re-firing
// the same rule for the same agent within one dedup window produces the
// same UUID, and the insert-or-ignore write collapses it to a single row.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/keiryo/internal/config"
	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/storage"
)

// alertNamespace seeds the deterministic alert UUIDs.
var alertNamespace = uuid.MustParse("5c1f3c8a-2e6b-4b5e-9d2f-7a81c4f0a1d3")

const (
	ruleResponseTime = "response_time"
	ruleCostSpike    = "cost_spike"
	ruleErrorRate    = "error_rate"
)

// Evaluator applies the threshold rules. Thresholds are immutable after
// construction; nothing in the rules is hard-coded.
type Evaluator struct {
	db     *storage.DB
	th     config.Thresholds
	logger *slog.Logger
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(db *storage.DB, th config.Thresholds, logger *slog.Logger) *Evaluator {
	return &Evaluator{db: db, th: th, logger: logger}
}

// Evaluate runs all rules for one task execution against the agent's
// PRE-event snapshot (the cost-spike comparison baseline) and persists any
// breaches. Persist failures are logged and swallowed: alerting is
// best-effort and must never surface to the task-executing caller.
func (e *Evaluator) Evaluate(ctx context.Context, ev model.TaskExecution, prior model.AgentStats) {
	now := time.Now().UTC()
	if ev.CompletedAt != nil {
		now = ev.CompletedAt.UTC()
	}

	for _, a := range e.evaluate(ev, prior, now) {
		created, err := e.db.InsertAlert(ctx, a)
		if err != nil {
			e.logger.Warn("alerts: persist failed", "rule", a.Title, "agent_id", a.AgentID, "error", err)
			continue
		}
		if created {
			e.logger.Info("alert created",
				"level", a.Level, "title", a.Title, "agent_id", a.AgentID,
				"threshold", a.ThresholdValue, "actual", a.ActualValue)
		}
	}
}

// evaluate is the pure rule core: returns the alerts one execution fires.
func (e *Evaluator) evaluate(ev model.TaskExecution, prior model.AgentStats, now time.Time) []model.Alert {
	var out []model.Alert

	// Response-time rule: no minimum sample size.
	if ev.DurationMs > e.th.ResponseTimeMs {
		out = append(out, model.Alert{
			ID:    e.alertID(ruleResponseTime, ev.AgentID, now),
			Level: model.AlertWarning,
			Title: "Slow task execution",
			Description: fmt.Sprintf("Agent %s took %.0f ms to complete a task (threshold %.0f ms)",
				ev.AgentID, ev.DurationMs, e.th.ResponseTimeMs),
			MetricKind:     model.MetricResponseTime,
			ThresholdValue: e.th.ResponseTimeMs,
			ActualValue:    ev.DurationMs,
			AgentID:        ev.AgentID,
			CreatedAt:      now,
		})
	}

	// Cost-spike rule: gated on total_tasks > MinSamplesCostSpike, compared
	// against the average cost per task BEFORE this execution.
	if prior.TotalTasks > e.th.MinSamplesCostSpike {
		avg := prior.CostPerTask()
		if avg > 0 && ev.Cost > e.th.CostSpikeMultiplier*avg {
			out = append(out, model.Alert{
				ID:    e.alertID(ruleCostSpike, ev.AgentID, now),
				Level: model.AlertWarning,
				Title: "Cost spike",
				Description: fmt.Sprintf("Agent %s spent $%.4f on one task, over %.0fx its $%.4f average",
					ev.AgentID, ev.Cost, e.th.CostSpikeMultiplier, avg),
				MetricKind:     model.MetricCost,
				ThresholdValue: e.th.CostSpikeMultiplier * avg,
				ActualValue:    ev.Cost,
				AgentID:        ev.AgentID,
				CreatedAt:      now,
			})
		}
	}

	// Error-rate rule: gated on total_tasks >= MinSamplesErrorRate, evaluated
	// over the counters including this execution.
	current := prior
	current.TotalTasks++
	if ev.Success {
		current.SuccessfulTasks++
	} else {
		current.FailedTasks++
	}
	if current.TotalTasks >= e.th.MinSamplesErrorRate && current.ErrorRate() > e.th.ErrorRatePct {
		out = append(out, model.Alert{
			ID:    e.alertID(ruleErrorRate, ev.AgentID, now),
			Level: model.AlertCritical,
			Title: "High error rate",
			Description: fmt.Sprintf("Agent %s is failing %.1f%% of tasks (threshold %.1f%%)",
				ev.AgentID, current.ErrorRate(), e.th.ErrorRatePct),
			MetricKind:     model.MetricCompletion,
			ThresholdValue: e.th.ErrorRatePct,
			ActualValue:    current.ErrorRate(),
			AgentID:        ev.AgentID,
			CreatedAt:      now,
		})
	}

	return out
}

// alertID derives a deterministic UUID from the rule, agent, and the event
// time truncated to the dedup window. Identical breaches inside one window
// share an ID; breaches in different windows get fresh IDs.
func (e *Evaluator) alertID(rule, agentID string, at time.Time) uuid.UUID {
	bucket := at.Truncate(e.th.AlertDedupWindow).Unix()
	return uuid.NewSHA1(alertNamespace, fmt.Appendf(nil, "%s|%s|%d", rule, agentID, bucket))
}

// Resolve transitions one alert OPEN → RESOLVED. RESOLVED is terminal.
func (e *Evaluator) Resolve(ctx context.Context, id uuid.UUID) error {
	return e.db.ResolveAlert(ctx, id)
}
