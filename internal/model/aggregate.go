package model

import "time"

// HourlyAggregate is a durable pre-aggregated summary row, one per
// (hour_bucket, agent_type) for a fully-elapsed hour. Recomputing the same
// hour from the same timeline rows yields the same row (idempotent upsert).
type HourlyAggregate struct {
	HourBucket     time.Time `json:"hour_bucket"`
	AgentType      string    `json:"agent_type"`
	TasksCompleted int64     `json:"tasks_completed"`
	SuccessRate    float64   `json:"success_rate"`
	AvgResponseMs  float64   `json:"avg_response_time"`
	TotalCost      float64   `json:"total_cost"`
	TotalTokens    int64     `json:"total_tokens"`
}

// AgentTypePerformance is a rollup of timeline rows grouped by agent type
// over a trailing window, used by the trends query.
type AgentTypePerformance struct {
	AgentType      string  `json:"agent_type"`
	TasksCompleted int64   `json:"tasks_completed"`
	SuccessRate    float64 `json:"success_rate"`
	AvgResponseMs  float64 `json:"avg_response_time"`
	TotalCost      float64 `json:"total_cost"`
	TotalTokens    int64   `json:"total_tokens"`
}
