package model

// OverallStats is the fleet-wide roll-up across every tracked agent.
type OverallStats struct {
	TotalTasks      int64   `json:"total_tasks"`
	SuccessfulTasks int64   `json:"successful_tasks"`
	FailedTasks     int64   `json:"failed_tasks"`
	TotalCost       float64 `json:"total_cost"`
	TotalTokens     int64   `json:"total_tokens"`
	AvgResponseMs   float64 `json:"avg_response_time"`
	SuccessRate     float64 `json:"success_rate"`
	ActiveAgents    int     `json:"active_agents"`
}

// Summary is the outbound performance-summary payload. The read path never
// fails outright: when durable storage is unavailable the in-memory parts
// are still populated and Error carries the degradation reason.
type Summary struct {
	Overall      OverallStats             `json:"overall"`
	Agents       []AgentStats             `json:"agents"`
	ActiveAlerts []Alert                  `json:"active_alerts"`
	Providers    map[string]ProviderStats `json:"providers"`
	Error        string                   `json:"error,omitempty"`
}

// Trends is the outbound historical-trends payload, same degradation
// contract as Summary.
type Trends struct {
	WindowHours int                    `json:"window_hours"`
	Hourly      []HourlyAggregate      `json:"hourly"`
	AgentTypes  []AgentTypePerformance `json:"agent_types"`
	Error       string                 `json:"error,omitempty"`
}
