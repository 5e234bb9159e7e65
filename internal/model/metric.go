// Package model defines the core domain types for Keiryo.
//
// All types correspond directly to database tables and event payloads.
// Types use strong typing (UUIDs, time.Time, enums) and avoid
// interface{} wherever possible.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MetricKind is the canonical metric category a task execution decomposes into.
type MetricKind string

const (
	MetricCompletion   MetricKind = "completion"
	MetricResponseTime MetricKind = "response_time"
	MetricTokens       MetricKind = "tokens"
	MetricCost         MetricKind = "cost"
)

// Kinds lists every metric kind one task execution produces, in write order.
var Kinds = []MetricKind{MetricCompletion, MetricResponseTime, MetricTokens, MetricCost}

// Metric is one canonical measurement extracted from a task execution.
// Immutable once written; re-writing the same ID upserts rather than duplicating.
type Metric struct {
	ID         uuid.UUID         `json:"metric_id"`
	AgentID    string            `json:"agent_id"`
	AgentType  string            `json:"agent_type"`
	Kind       MetricKind        `json:"kind"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	RecordedAt time.Time         `json:"recorded_at"`
	TaskID     string            `json:"task_id,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TaskExecution is the inbound task-completion event delivered by the
// dispatcher's OnTaskComplete hook. All fields are best-effort: missing
// values are defaulted during ingestion, never rejected.
type TaskExecution struct {
	TaskID        string     `json:"task_id"`
	AgentID       string     `json:"agent_id"`
	AgentType     string     `json:"agent_type"`
	TaskName      string     `json:"task_name"`
	Success       bool       `json:"success"`
	DurationMs    float64    `json:"duration_ms"`
	TokensUsed    int64      `json:"tokens_used"`
	Cost          float64    `json:"cost"`
	Provider      string     `json:"provider"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Status        string     `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	FilesCreated  []string   `json:"files_created,omitempty"`
	FilesModified []string   `json:"files_modified,omitempty"`
}

// TaskTimelineRecord is the durable per-task execution record.
// Only the counts of created/modified files are persisted.
type TaskTimelineRecord struct {
	TaskID        string     `json:"task_id"`
	AgentID       string     `json:"agent_id"`
	AgentType     string     `json:"agent_type"`
	TaskName      string     `json:"task_name"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMs    float64    `json:"duration_ms"`
	TokensUsed    int64      `json:"tokens_used"`
	Cost          float64    `json:"cost"`
	Provider      string     `json:"provider"`
	Success       bool       `json:"success"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	FilesCreated  int        `json:"files_created_count"`
	FilesModified int        `json:"files_modified_count"`
}

// Timeline converts the inbound event into its durable timeline form.
func (e TaskExecution) Timeline() TaskTimelineRecord {
	return TaskTimelineRecord{
		TaskID:        e.TaskID,
		AgentID:       e.AgentID,
		AgentType:     e.AgentType,
		TaskName:      e.TaskName,
		Status:        e.Status,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
		DurationMs:    e.DurationMs,
		TokensUsed:    e.TokensUsed,
		Cost:          e.Cost,
		Provider:      e.Provider,
		Success:       e.Success,
		ErrorMessage:  e.ErrorMessage,
		FilesCreated:  len(e.FilesCreated),
		FilesModified: len(e.FilesModified),
	}
}
