// Package ingest turns task-completion events into canonical metrics,
// timeline records, and in-memory stats updates.
//
// Ingestion is strictly best-effort: every write failure is logged and
// swallowed so telemetry can never block or fail the business task that
// produced the event. The four metric writes, the timeline insert, and the
// stats update are deliberately not atomic; the periodic reconciler squares
// the durable summaries against what actually landed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/rolling"
	"github.com/ashita-ai/keiryo/internal/service/alerts"
	"github.com/ashita-ai/keiryo/internal/storage"
)

// metricNamespace seeds deterministic metric UUIDs so that at-least-once
// delivery of the same task execution upserts rather than duplicates.
var metricNamespace = uuid.MustParse("e3b6a7d4-91f2-4c38-b640-0f5d2a9c7e11")

// Recorder ingests task executions. It satisfies the root TelemetrySink
// interface that dispatchers receive at construction time.
type Recorder struct {
	db      *storage.DB
	tracker *rolling.Tracker
	eval    *alerts.Evaluator
	logger  *slog.Logger
}

// NewRecorder wires the ingestion path.
func NewRecorder(db *storage.DB, tracker *rolling.Tracker, eval *alerts.Evaluator, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, tracker: tracker, eval: eval, logger: logger}
}

// RecordTaskExecution ingests one completed task. It never returns an
// error: malformed fields are defaulted and every store failure is logged
// and swallowed. Within a single call the order is fixed (metrics, then
// the timeline record, then stats, then alert evaluation) but no total
// order holds across concurrent calls.
func (r *Recorder) RecordTaskExecution(ctx context.Context, ev model.TaskExecution) {
	ev = withDefaults(ev)

	metrics := Decompose(ev)
	for _, m := range metrics {
		if err := r.db.UpsertMetric(ctx, m); err != nil {
			r.logger.Warn("ingest: metric write failed",
				"task_id", ev.TaskID, "kind", m.Kind, "error", err)
		}
	}

	if err := r.db.InsertTimeline(ctx, ev.Timeline()); err != nil {
		r.logger.Warn("ingest: timeline write failed", "task_id", ev.TaskID, "error", err)
	}

	prior := r.tracker.Observe(ev)
	r.tracker.Remember(metrics...)

	r.eval.Evaluate(ctx, ev, prior)
}

// withDefaults fills the fields ingestion cannot proceed without. A missing
// task_id is synthesized from the monotonic clock; a missing completion
// time defaults to now so retention and rollups can bucket the row.
func withDefaults(ev model.TaskExecution) model.TaskExecution {
	if ev.TaskID == "" {
		ev.TaskID = fmt.Sprintf("task-%d", time.Now().UnixNano())
	}
	if ev.CompletedAt == nil {
		now := time.Now().UTC()
		ev.CompletedAt = &now
	}
	if ev.Status == "" {
		if ev.Success {
			ev.Status = "completed"
		} else {
			ev.Status = "failed"
		}
	}
	if ev.DurationMs < 0 {
		ev.DurationMs = 0
	}
	if ev.TokensUsed < 0 {
		ev.TokensUsed = 0
	}
	if ev.Cost < 0 {
		ev.Cost = 0
	}
	return ev
}

// Decompose splits one task execution into its four canonical metrics:
// completion (0/1), response time (ms), tokens, and cost (USD).
func Decompose(ev model.TaskExecution) []model.Metric {
	completion := 0.0
	if ev.Success {
		completion = 1.0
	}
	at := time.Now().UTC()
	if ev.CompletedAt != nil {
		at = ev.CompletedAt.UTC()
	}

	values := map[model.MetricKind]struct {
		value float64
		unit  string
	}{
		model.MetricCompletion:   {completion, "bool"},
		model.MetricResponseTime: {ev.DurationMs, "ms"},
		model.MetricTokens:       {float64(ev.TokensUsed), "tokens"},
		model.MetricCost:         {ev.Cost, "usd"},
	}

	out := make([]model.Metric, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		v := values[kind]
		out = append(out, model.Metric{
			ID:         MetricID(ev.TaskID, kind),
			AgentID:    ev.AgentID,
			AgentType:  ev.AgentType,
			Kind:       kind,
			Value:      v.value,
			Unit:       v.unit,
			RecordedAt: at,
			TaskID:     ev.TaskID,
			Provider:   ev.Provider,
		})
	}
	return out
}

// MetricID derives the deterministic UUID for one (task, kind) pair.
func MetricID(taskID string, kind model.MetricKind) uuid.UUID {
	return uuid.NewSHA1(metricNamespace, fmt.Appendf(nil, "%s|%s", taskID, kind))
}
