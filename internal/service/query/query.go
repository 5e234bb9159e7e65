// Package query assembles the outbound read models: the fleet performance
// summary and the historical trends view. Reads degrade instead of
// failing: a broken store yields a payload with the Error field set and
// whatever the in-memory tracker can still answer.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/rolling"
	"github.com/ashita-ai/keiryo/internal/storage"
)

// activeAlertLimit caps the alerts embedded in a summary payload.
const activeAlertLimit = 10

// Service answers the two read queries.
type Service struct {
	db      *storage.DB
	tracker *rolling.Tracker
	logger  *slog.Logger
}

// New creates a query service.
func New(db *storage.DB, tracker *rolling.Tracker, logger *slog.Logger) *Service {
	return &Service{db: db, tracker: tracker, logger: logger}
}

// Summary returns the current fleet summary. Agent and provider stats come
// from memory; active alerts come from storage and degrade gracefully.
func (s *Service) Summary(ctx context.Context) model.Summary {
	agents := s.tracker.Agents()
	providers := s.tracker.Providers()

	providerMap := make(map[string]model.ProviderStats, len(providers))
	for _, p := range providers {
		providerMap[p.Provider] = p
	}

	out := model.Summary{
		Overall:   Overall(agents),
		Agents:    agents,
		Providers: providerMap,
	}

	alerts, err := s.db.ListActiveAlerts(ctx, activeAlertLimit)
	if err != nil {
		s.logger.Warn("summary: active alerts unavailable", "error", err)
		out.Error = "active alerts unavailable: " + err.Error()
		return out
	}
	out.ActiveAlerts = alerts
	return out
}

// ActiveAlerts lists unresolved alerts, newest first.
func (s *Service) ActiveAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	return s.db.ListActiveAlerts(ctx, limit)
}

// Trends returns rolled-up hourly history plus a live per-agent-type view
// over the trailing window. hours is clamped to [1, 720].
func (s *Service) Trends(ctx context.Context, hours int) model.Trends {
	hours = clampHours(hours)
	out := model.Trends{WindowHours: hours}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	hourly, err := s.db.HourlyTrends(ctx, since)
	if err != nil {
		s.logger.Warn("trends: hourly rollups unavailable", "error", err)
		out.Error = "trends unavailable: " + err.Error()
		return out
	}
	out.Hourly = hourly

	byType, err := s.db.AgentTypePerformance(ctx, since)
	if err != nil {
		s.logger.Warn("trends: agent type view unavailable", "error", err)
		out.Error = "agent type view unavailable: " + err.Error()
		return out
	}
	out.AgentTypes = byType
	return out
}

// clampHours forces the trends window into [1, 720]. The HTTP layer
// supplies the 24h default for an absent parameter.
func clampHours(hours int) int {
	if hours < 1 {
		return 1
	}
	if hours > 720 {
		return 720
	}
	return hours
}

// Overall folds per-agent snapshots into a fleet-wide total. The average
// response time is task-weighted, not a mean of means.
func Overall(agents []model.AgentStats) model.OverallStats {
	var o model.OverallStats
	var weightedMs float64
	for _, a := range agents {
		o.TotalTasks += a.TotalTasks
		o.SuccessfulTasks += a.SuccessfulTasks
		o.FailedTasks += a.FailedTasks
		o.TotalCost += a.TotalCost
		o.TotalTokens += a.TotalTokens
		weightedMs += a.AvgResponseMs * float64(a.TotalTasks)
	}
	o.ActiveAgents = len(agents)
	if o.TotalTasks > 0 {
		o.AvgResponseMs = weightedMs / float64(o.TotalTasks)
		o.SuccessRate = float64(o.SuccessfulTasks) / float64(o.TotalTasks) * 100
	}
	return o
}
