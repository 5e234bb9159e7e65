package alerts

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/keiryo/internal/config"
	"github.com/ashita-ai/keiryo/internal/model"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testThresholds() config.Thresholds {
	return config.Thresholds{
		ErrorRatePct:        30,
		ResponseTimeMs:      30_000,
		CostSpikeMultiplier: 3,
		SlowAgentMs:         20_000,
		CostPerTaskUSD:      1.00,
		MinSamplesErrorRate: 10,
		MinSamplesCostSpike: 5,
		AlertDedupWindow:    5 * time.Minute,
	}
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(nil, testThresholds(), slogDiscard())
}

// healthyAgent mirrors an agent after 10 tasks, 8 successes, 5s average,
// $0.80 total cost.
func healthyAgent() model.AgentStats {
	return model.AgentStats{
		AgentID:         "agent-a",
		TotalTasks:      10,
		SuccessfulTasks: 8,
		FailedTasks:     2,
		TotalCost:       0.80,
		AvgResponseMs:   5000,
	}
}

func TestEvaluate_HealthyAgentNoAlerts(t *testing.T) {
	e := newTestEvaluator()
	ev := model.TaskExecution{AgentID: "agent-a", Success: true, DurationMs: 5000, Cost: 0.08}

	got := e.evaluate(ev, healthyAgent(), time.Now().UTC())
	assert.Empty(t, got, "80%% success and 5s responses breach nothing")
}

func TestEvaluate_ResponseTimeWarning(t *testing.T) {
	e := newTestEvaluator()
	// The agent's 11th task takes 40s.
	ev := model.TaskExecution{AgentID: "agent-a", Success: true, DurationMs: 40_000, Cost: 0.08}

	got := e.evaluate(ev, healthyAgent(), time.Now().UTC())
	require.Len(t, got, 1)
	assert.Equal(t, model.AlertWarning, got[0].Level)
	assert.Equal(t, model.MetricResponseTime, got[0].MetricKind)
	assert.Equal(t, 30_000.0, got[0].ThresholdValue)
	assert.Equal(t, 40_000.0, got[0].ActualValue)
}

func TestEvaluate_ResponseTimeNoSampleGate(t *testing.T) {
	e := newTestEvaluator()
	ev := model.TaskExecution{AgentID: "fresh", Success: true, DurationMs: 31_000}

	got := e.evaluate(ev, model.AgentStats{AgentID: "fresh"}, time.Now().UTC())
	require.Len(t, got, 1, "response-time rule fires even on the very first task")
}

func TestEvaluate_CostSpike(t *testing.T) {
	e := newTestEvaluator()
	// Prior average is $0.08/task; $0.30 is over 3x that.
	ev := model.TaskExecution{AgentID: "agent-a", Success: true, DurationMs: 5000, Cost: 0.30}

	got := e.evaluate(ev, healthyAgent(), time.Now().UTC())
	require.Len(t, got, 1)
	assert.Equal(t, model.MetricCost, got[0].MetricKind)
	assert.Equal(t, model.AlertWarning, got[0].Level)
	assert.InDelta(t, 0.24, got[0].ThresholdValue, 1e-9)
	assert.InDelta(t, 0.30, got[0].ActualValue, 1e-9)
}

func TestEvaluate_CostSpikeSampleGate(t *testing.T) {
	e := newTestEvaluator()
	prior := model.AgentStats{AgentID: "young", TotalTasks: 5, SuccessfulTasks: 5, TotalCost: 0.05}
	ev := model.TaskExecution{AgentID: "young", Success: true, DurationMs: 100, Cost: 10.0}

	got := e.evaluate(ev, prior, time.Now().UTC())
	assert.Empty(t, got, "no cost-spike alert at or below the sample gate")
}

func TestEvaluate_ErrorRateCritical(t *testing.T) {
	e := newTestEvaluator()
	// 9 prior tasks with 3 failures; this failure makes 4/10 = 40%.
	prior := model.AgentStats{AgentID: "flaky", TotalTasks: 9, SuccessfulTasks: 6, FailedTasks: 3}
	ev := model.TaskExecution{AgentID: "flaky", Success: false, DurationMs: 100}

	got := e.evaluate(ev, prior, time.Now().UTC())
	require.Len(t, got, 1)
	assert.Equal(t, model.AlertCritical, got[0].Level)
	assert.Equal(t, model.MetricCompletion, got[0].MetricKind)
	assert.InDelta(t, 40.0, got[0].ActualValue, 1e-9)
}

func TestEvaluate_ErrorRateSampleGate(t *testing.T) {
	e := newTestEvaluator()
	// 8 prior tasks all failed; even at 100% error rate the gate holds at 9 total.
	prior := model.AgentStats{AgentID: "cold", TotalTasks: 8, FailedTasks: 8}
	ev := model.TaskExecution{AgentID: "cold", Success: false, DurationMs: 100}

	got := e.evaluate(ev, prior, time.Now().UTC())
	assert.Empty(t, got, "no error-rate alert below 10 total tasks")
}

func TestAlertID_DedupWindow(t *testing.T) {
	e := newTestEvaluator()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	a := e.alertID(ruleResponseTime, "agent-a", base)
	b := e.alertID(ruleResponseTime, "agent-a", base.Add(4*time.Minute))
	c := e.alertID(ruleResponseTime, "agent-a", base.Add(6*time.Minute))

	assert.Equal(t, a, b, "same rule+agent within one window collapses")
	assert.NotEqual(t, a, c, "a new window gets a fresh ID")

	d := e.alertID(ruleErrorRate, "agent-a", base)
	assert.NotEqual(t, a, d, "different rules never collide")
}

func TestEvaluate_MultipleRulesFireTogether(t *testing.T) {
	e := newTestEvaluator()
	// Slow, expensive, and failing all at once.
	prior := model.AgentStats{AgentID: "mess", TotalTasks: 20, SuccessfulTasks: 10, FailedTasks: 10, TotalCost: 1.0}
	ev := model.TaskExecution{AgentID: "mess", Success: false, DurationMs: 60_000, Cost: 1.0}

	got := e.evaluate(ev, prior, time.Now().UTC())
	assert.Len(t, got, 3)
}
