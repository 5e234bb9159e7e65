package keiryo

import (
	"time"

	"github.com/google/uuid"
)

// TaskExecution is the public inbound task-completion event.
// All fields are best-effort: missing values are defaulted during
// ingestion, never rejected. No internal package imports, so it is safe
// to construct from outside the module.
type TaskExecution struct {
	TaskID        string
	AgentID       string
	AgentType     string
	TaskName      string
	Success       bool
	DurationMs    float64
	TokensUsed    int64
	Cost          float64
	Provider      string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Status        string
	ErrorMessage  string
	FilesCreated  []string
	FilesModified []string
}

// AgentStats is the public view of one agent's accumulated counters,
// with derived values materialized.
type AgentStats struct {
	AgentID         string
	AgentType       string
	TotalTasks      int64
	SuccessfulTasks int64
	FailedTasks     int64
	SuccessRate     float64 // percentage in [0, 100]
	TotalCost       float64
	CostPerTask     float64
	TotalTokens     int64
	AvgResponseMs   float64
	LastActive      time.Time
}

// ProviderStats is the public view of one provider's counters.
type ProviderStats struct {
	Provider      string
	Requests      int64
	Errors        int64
	SuccessRate   float64 // percentage in [0, 100]
	TotalCost     float64
	AvgResponseMs float64
}

// Alert is a recorded threshold breach.
type Alert struct {
	ID             uuid.UUID
	Level          string // info | warning | critical
	Title          string
	Description    string
	MetricKind     string
	ThresholdValue float64
	ActualValue    float64
	AgentID        string
	CreatedAt      time.Time
	Resolved       bool
	ResolvedAt     *time.Time
}

// OverallStats is the fleet-wide roll-up across every tracked agent.
type OverallStats struct {
	TotalTasks      int64
	SuccessfulTasks int64
	FailedTasks     int64
	SuccessRate     float64
	TotalCost       float64
	TotalTokens     int64
	AvgResponseMs   float64
	ActiveAgents    int
}

// Summary is the fleet performance summary. Error is set instead of
// failing the call when durable storage is unavailable; the in-memory
// parts are still populated.
type Summary struct {
	Overall      OverallStats
	Agents       []AgentStats
	ActiveAlerts []Alert
	Providers    map[string]ProviderStats
	Error        string
}

// HourlyPoint is one hour of rolled-up history for one agent type.
type HourlyPoint struct {
	HourBucket     time.Time
	AgentType      string
	TasksCompleted int64
	SuccessRate    float64
	AvgResponseMs  float64
	TotalCost      float64
	TotalTokens    int64
}

// AgentTypePerformance aggregates the trailing window per agent type.
type AgentTypePerformance struct {
	AgentType      string
	TasksCompleted int64
	SuccessRate    float64
	AvgResponseMs  float64
	TotalCost      float64
	TotalTokens    int64
}

// Trends is the historical-trends payload, same degradation contract as
// Summary.
type Trends struct {
	WindowHours int
	Hourly      []HourlyPoint
	AgentTypes  []AgentTypePerformance
	Error       string
}
