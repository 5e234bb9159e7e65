package model

import (
	"time"

	"github.com/google/uuid"
)

// AlertLevel is the severity of a threshold alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is an append-only record of a threshold breach.
// Inserts are keyed on ID with insert-or-ignore semantics, so re-firing an
// identical ID within the dedup window is a no-op rather than a duplicate.
// Resolution is an explicit external mutation: OPEN → RESOLVED, terminal.
type Alert struct {
	ID             uuid.UUID  `json:"alert_id"`
	Level          AlertLevel `json:"level"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	MetricKind     MetricKind `json:"metric_kind"`
	ThresholdValue float64    `json:"threshold_value"`
	ActualValue    float64    `json:"actual_value"`
	AgentID        string     `json:"agent_id"`
	CreatedAt      time.Time  `json:"timestamp"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
