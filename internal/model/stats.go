package model

import "time"

// AgentStats is a point-in-time snapshot of one agent's accumulated
// performance counters. Derived values live behind methods so the clamping
// and divide guards apply everywhere a snapshot is read.
type AgentStats struct {
	AgentID         string         `json:"agent_id"`
	AgentType       string         `json:"agent_type"`
	TotalTasks      int64          `json:"total_tasks"`
	SuccessfulTasks int64          `json:"successful_tasks"`
	FailedTasks     int64          `json:"failed_tasks"`
	TotalCost       float64        `json:"total_cost"`
	TotalTokens     int64          `json:"total_tokens"`
	AvgResponseMs   float64        `json:"avg_response_time"`
	LastActive      time.Time      `json:"last_active"`
	HourlyActivity  map[string]int `json:"hourly_activity,omitempty"`
	ProviderUsage   map[string]int `json:"provider_usage,omitempty"`
}

// SuccessRate returns successful/total as a percentage, clamped to [0,100].
func (s AgentStats) SuccessRate() float64 {
	if s.TotalTasks <= 0 {
		return 0
	}
	return clampPct(float64(s.SuccessfulTasks) / float64(s.TotalTasks) * 100)
}

// ErrorRate returns failed/total as a percentage, clamped to [0,100].
func (s AgentStats) ErrorRate() float64 {
	if s.TotalTasks <= 0 {
		return 0
	}
	return clampPct(float64(s.FailedTasks) / float64(s.TotalTasks) * 100)
}

// CostPerTask floors the denominator at 1 so a zero-task agent reports 0.
func (s AgentStats) CostPerTask() float64 {
	return s.TotalCost / float64(max(s.TotalTasks, 1))
}

// TokensPerTask floors the denominator at 1, same guard as CostPerTask.
func (s AgentStats) TokensPerTask() float64 {
	return float64(s.TotalTokens) / float64(max(s.TotalTasks, 1))
}

// ProviderStats is a point-in-time snapshot of one provider's counters.
type ProviderStats struct {
	Provider      string  `json:"provider"`
	Requests      int64   `json:"requests"`
	Errors        int64   `json:"errors"`
	TotalCost     float64 `json:"total_cost"`
	AvgResponseMs float64 `json:"avg_response_time"`
}

// SuccessRate returns (requests-errors)/requests as a percentage, clamped to [0,100].
func (p ProviderStats) SuccessRate() float64 {
	if p.Requests <= 0 {
		return 0
	}
	return clampPct(float64(p.Requests-p.Errors) / float64(p.Requests) * 100)
}

// CostPerRequest floors the denominator at 1.
func (p ProviderStats) CostPerRequest() float64 {
	return p.TotalCost / float64(max(p.Requests, 1))
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
