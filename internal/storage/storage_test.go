package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/storage"
	"github.com/ashita-ai/keiryo/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	defer testDB.Close()

	os.Exit(m.Run())
}

func newMetric(agentID string, kind model.MetricKind, value float64, at time.Time) model.Metric {
	return model.Metric{
		ID:         uuid.New(),
		AgentID:    agentID,
		AgentType:  "coder",
		Kind:       kind,
		Value:      value,
		Unit:       "ms",
		RecordedAt: at,
		TaskID:     "task-" + uuid.NewString(),
		Provider:   "anthropic",
	}
}

func newTimeline(taskID, agentType string, success bool, completedAt time.Time) model.TaskTimelineRecord {
	started := completedAt.Add(-5 * time.Second)
	return model.TaskTimelineRecord{
		TaskID:      taskID,
		AgentID:     "agent-" + agentType,
		AgentType:   agentType,
		TaskName:    "summarize",
		Status:      "completed",
		StartedAt:   &started,
		CompletedAt: &completedAt,
		DurationMs:  5000,
		TokensUsed:  1000,
		Cost:        0.05,
		Provider:    "anthropic",
		Success:     success,
	}
}

func TestUpsertMetric_SameIDOverwrites(t *testing.T) {
	ctx := context.Background()
	m := newMetric("agent-upsert", model.MetricResponseTime, 5000, time.Now().UTC())

	require.NoError(t, testDB.UpsertMetric(ctx, m))

	m.Value = 7500
	require.NoError(t, testDB.UpsertMetric(ctx, m))

	got, err := testDB.ListMetricsSince(ctx, time.Now().UTC().Add(-time.Minute), 100)
	require.NoError(t, err)

	var found int
	for _, row := range got {
		if row.ID == m.ID {
			found++
			assert.Equal(t, 7500.0, row.Value, "upsert must overwrite, not duplicate")
		}
	}
	assert.Equal(t, 1, found, "a metric_id maps to at most one row")
}

func TestInsertTimeline_Idempotent(t *testing.T) {
	ctx := context.Background()
	rec := newTimeline("task-idem-1", "coder", true, time.Now().UTC())

	require.NoError(t, testDB.InsertTimeline(ctx, rec))
	require.NoError(t, testDB.InsertTimeline(ctx, rec))

	got, err := testDB.GetTimeline(ctx, "task-idem-1")
	require.NoError(t, err)
	assert.Equal(t, rec.TaskID, got.TaskID)
	assert.True(t, got.Success)
}

func TestGetTimeline_NotFound(t *testing.T) {
	_, err := testDB.GetTimeline(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertAlert_IgnoreDuplicate(t *testing.T) {
	ctx := context.Background()
	a := model.Alert{
		ID:             uuid.New(),
		Level:          model.AlertWarning,
		Title:          "Slow response",
		Description:    "agent exceeded response-time threshold",
		MetricKind:     model.MetricResponseTime,
		ThresholdValue: 30_000,
		ActualValue:    40_000,
		AgentID:        "agent-alert",
		CreatedAt:      time.Now().UTC(),
	}

	created, err := testDB.InsertAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = testDB.InsertAlert(ctx, a)
	require.NoError(t, err)
	assert.False(t, created, "re-firing the identical alert_id must be a no-op")
}

func TestResolveAlert_Terminal(t *testing.T) {
	ctx := context.Background()
	a := model.Alert{
		ID:             uuid.New(),
		Level:          model.AlertCritical,
		Title:          "High error rate",
		MetricKind:     model.MetricCompletion,
		ThresholdValue: 30,
		ActualValue:    55,
		AgentID:        "agent-resolve",
		CreatedAt:      time.Now().UTC(),
	}
	_, err := testDB.InsertAlert(ctx, a)
	require.NoError(t, err)

	require.NoError(t, testDB.ResolveAlert(ctx, a.ID))
	assert.ErrorIs(t, testDB.ResolveAlert(ctx, a.ID), storage.ErrAlreadyResolved)
	assert.ErrorIs(t, testDB.ResolveAlert(ctx, uuid.New()), storage.ErrNotFound)
}

func TestListActiveAlerts_ExcludesResolved(t *testing.T) {
	ctx := context.Background()
	open := model.Alert{
		ID: uuid.New(), Level: model.AlertWarning, Title: "open",
		MetricKind: model.MetricCost, AgentID: "agent-list", CreatedAt: time.Now().UTC(),
	}
	closed := model.Alert{
		ID: uuid.New(), Level: model.AlertWarning, Title: "closed",
		MetricKind: model.MetricCost, AgentID: "agent-list", CreatedAt: time.Now().UTC(),
	}
	_, err := testDB.InsertAlert(ctx, open)
	require.NoError(t, err)
	_, err = testDB.InsertAlert(ctx, closed)
	require.NoError(t, err)
	require.NoError(t, testDB.ResolveAlert(ctx, closed.ID))

	alerts, err := testDB.ListActiveAlerts(ctx, 100)
	require.NoError(t, err)
	for _, al := range alerts {
		assert.NotEqual(t, closed.ID, al.ID, "resolved alerts must not appear as active")
	}
}

func TestAgentSummary_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := model.AgentStats{
		AgentID:         "agent-summary",
		AgentType:       "researcher",
		TotalTasks:      10,
		SuccessfulTasks: 8,
		FailedTasks:     2,
		TotalCost:       0.80,
		TotalTokens:     5000,
		AvgResponseMs:   5000,
		LastActive:      time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, testDB.UpsertAgentSummary(ctx, s))

	// Second upsert with updated counters overwrites the row.
	s.TotalTasks = 11
	s.SuccessfulTasks = 9
	require.NoError(t, testDB.UpsertAgentSummary(ctx, s))

	all, err := testDB.ListAgentSummaries(ctx)
	require.NoError(t, err)

	var got *model.AgentStats
	for i := range all {
		if all[i].AgentID == "agent-summary" {
			got = &all[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, int64(11), got.TotalTasks)
	assert.InDelta(t, 81.8, got.SuccessRate(), 0.1)
}

func TestProviderDay_Totals(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, testDB.UpsertProviderDay(ctx, day, model.ProviderStats{
		Provider: "prov-totals", Requests: 100, Errors: 5, TotalCost: 2.0, AvgResponseMs: 3000,
	}))
	require.NoError(t, testDB.UpsertProviderDay(ctx, day.AddDate(0, 0, 1), model.ProviderStats{
		Provider: "prov-totals", Requests: 300, Errors: 15, TotalCost: 6.0, AvgResponseMs: 1000,
	}))

	totals, err := testDB.ListProviderTotals(ctx)
	require.NoError(t, err)

	var got *model.ProviderStats
	for i := range totals {
		if totals[i].Provider == "prov-totals" {
			got = &totals[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, int64(400), got.Requests)
	assert.Equal(t, int64(20), got.Errors)
	assert.InDelta(t, 8.0, got.TotalCost, 1e-9)
	// Request-weighted mean: (3000*100 + 1000*300) / 400.
	assert.InDelta(t, 1500.0, got.AvgResponseMs, 1e-6)
}

func TestHourlyAggregates_IdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	hour := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	// 4 tasks for one agent type inside the hour: 3 success, 1 failure.
	for i, ok := range []bool{true, true, true, false} {
		rec := newTimeline(fmt.Sprintf("task-agg-%d", i), "rollup-type", ok, hour.Add(time.Duration(i)*time.Minute))
		require.NoError(t, testDB.InsertTimeline(ctx, rec))
	}

	_, err := testDB.UpsertHourlyAggregates(ctx, hour)
	require.NoError(t, err)
	_, err = testDB.UpsertHourlyAggregates(ctx, hour)
	require.NoError(t, err)

	trends, err := testDB.HourlyTrends(ctx, hour.Add(-time.Hour))
	require.NoError(t, err)

	var rows []model.HourlyAggregate
	for _, tr := range trends {
		if tr.AgentType == "rollup-type" && tr.HourBucket.Equal(hour) {
			rows = append(rows, tr)
		}
	}
	require.Len(t, rows, 1, "re-running the aggregator must not create duplicate rows")
	assert.Equal(t, int64(4), rows[0].TasksCompleted)
	assert.InDelta(t, 75.0, rows[0].SuccessRate, 1e-9)
	assert.InDelta(t, 5000.0, rows[0].AvgResponseMs, 1e-9)
	assert.InDelta(t, 0.20, rows[0].TotalCost, 1e-9)
	assert.Equal(t, int64(4000), rows[0].TotalTokens)
}

func TestLastAggregatedHour_DefaultsTo24hAgo(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)

	marker, err := testDB.LastAggregatedHour(ctx, now)
	require.NoError(t, err)
	// Rows from other tests may already exist; the marker is either a real
	// MAX(hour_bucket) or the 24h fallback, and both are truncated to the hour.
	assert.Equal(t, marker, marker.Truncate(time.Hour))
}

func TestPruneExpired_RetentionWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	oldMetric := newMetric("agent-prune", model.MetricCost, 0.5, old)
	freshMetric := newMetric("agent-prune", model.MetricCost, 0.5, now)
	require.NoError(t, testDB.UpsertMetric(ctx, oldMetric))
	require.NoError(t, testDB.UpsertMetric(ctx, freshMetric))

	oldResolved := model.Alert{
		ID: uuid.New(), Level: model.AlertWarning, Title: "old resolved",
		MetricKind: model.MetricCost, AgentID: "agent-prune", CreatedAt: old,
	}
	oldOpen := model.Alert{
		ID: uuid.New(), Level: model.AlertWarning, Title: "old open",
		MetricKind: model.MetricCost, AgentID: "agent-prune", CreatedAt: old,
	}
	_, err := testDB.InsertAlert(ctx, oldResolved)
	require.NoError(t, err)
	_, err = testDB.InsertAlert(ctx, oldOpen)
	require.NoError(t, err)
	require.NoError(t, testDB.ResolveAlert(ctx, oldResolved.ID))

	counts, err := testDB.PruneExpired(ctx, now.AddDate(0, 0, -30), 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts.Metrics, int64(1))
	assert.GreaterOrEqual(t, counts.Alerts, int64(1))

	// The fresh metric survives.
	remaining, err := testDB.ListMetricsSince(ctx, now.Add(-time.Minute), 1000)
	require.NoError(t, err)
	var foundFresh bool
	for _, m := range remaining {
		require.NotEqual(t, oldMetric.ID, m.ID)
		if m.ID == freshMetric.ID {
			foundFresh = true
		}
	}
	assert.True(t, foundFresh, "rows newer than the window must not be removed")

	// The unresolved old alert survives; the resolved one is gone.
	agentAlerts, err := testDB.ListAlertsForAgent(ctx, "agent-prune")
	require.NoError(t, err)
	var openSurvives, resolvedSurvives bool
	for _, a := range agentAlerts {
		if a.ID == oldOpen.ID {
			openSurvives = true
		}
		if a.ID == oldResolved.ID {
			resolvedSurvives = true
		}
	}
	assert.True(t, openSurvives, "unresolved alerts are never auto-deleted")
	assert.False(t, resolvedSurvives)
}
