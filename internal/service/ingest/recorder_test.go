package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/keiryo/internal/model"
)

func TestDecompose_FourCanonicalMetrics(t *testing.T) {
	completed := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	ev := model.TaskExecution{
		TaskID:      "task-1",
		AgentID:     "agent-a",
		AgentType:   "coder",
		Success:     true,
		DurationMs:  5000,
		TokensUsed:  1200,
		Cost:        0.04,
		Provider:    "anthropic",
		CompletedAt: &completed,
	}

	metrics := Decompose(ev)
	require.Len(t, metrics, 4, "exactly four metrics per execution")

	byKind := map[model.MetricKind]model.Metric{}
	for _, m := range metrics {
		byKind[m.Kind] = m
	}

	assert.Equal(t, 1.0, byKind[model.MetricCompletion].Value, "success maps to 1")
	assert.Equal(t, 5000.0, byKind[model.MetricResponseTime].Value)
	assert.Equal(t, "ms", byKind[model.MetricResponseTime].Unit)
	assert.Equal(t, 1200.0, byKind[model.MetricTokens].Value)
	assert.Equal(t, 0.04, byKind[model.MetricCost].Value)

	for _, m := range metrics {
		assert.Equal(t, "task-1", m.TaskID)
		assert.Equal(t, "agent-a", m.AgentID)
		assert.Equal(t, completed, m.RecordedAt)
	}
}

func TestDecompose_FailureMapsToZero(t *testing.T) {
	metrics := Decompose(model.TaskExecution{TaskID: "t", Success: false})
	byKind := map[model.MetricKind]model.Metric{}
	for _, m := range metrics {
		byKind[m.Kind] = m
	}
	assert.Equal(t, 0.0, byKind[model.MetricCompletion].Value)
}

func TestMetricID_Deterministic(t *testing.T) {
	a := MetricID("task-1", model.MetricCost)
	b := MetricID("task-1", model.MetricCost)
	c := MetricID("task-1", model.MetricTokens)
	d := MetricID("task-2", model.MetricCost)

	assert.Equal(t, a, b, "re-delivery of the same execution reuses IDs")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestWithDefaults_SynthesizesTaskID(t *testing.T) {
	ev := withDefaults(model.TaskExecution{AgentID: "agent-a"})
	assert.NotEmpty(t, ev.TaskID)
	assert.Contains(t, ev.TaskID, "task-")
	require.NotNil(t, ev.CompletedAt)

	again := withDefaults(model.TaskExecution{AgentID: "agent-a"})
	assert.NotEqual(t, ev.TaskID, again.TaskID, "synthesized IDs are unique")
}

func TestWithDefaults_ClampsNegatives(t *testing.T) {
	ev := withDefaults(model.TaskExecution{TaskID: "t", DurationMs: -5, TokensUsed: -1, Cost: -0.5})
	assert.Zero(t, ev.DurationMs)
	assert.Zero(t, ev.TokensUsed)
	assert.Zero(t, ev.Cost)
}

func TestWithDefaults_Status(t *testing.T) {
	ok := withDefaults(model.TaskExecution{TaskID: "t", Success: true})
	assert.Equal(t, "completed", ok.Status)

	failed := withDefaults(model.TaskExecution{TaskID: "t", Success: false})
	assert.Equal(t, "failed", failed.Status)

	explicit := withDefaults(model.TaskExecution{TaskID: "t", Status: "cancelled"})
	assert.Equal(t, "cancelled", explicit.Status)
}
