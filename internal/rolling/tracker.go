package rolling

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/telemetry"
)

// hourKeyFormat buckets agent activity by UTC hour.
const hourKeyFormat = "2006-01-02T15"

// hourlyActivityRetention bounds how far back the per-agent activity
// buckets reach; older buckets are dropped when a new hour starts.
const hourlyActivityRetention = 24 * time.Hour

// agentState holds one agent's live counters. Guarded by Tracker.mu.
type agentState struct {
	agentType       string
	totalTasks      int64
	successfulTasks int64
	failedTasks     int64
	totalCost       float64
	totalTokens     int64
	responseTimes   *Window
	lastActive      time.Time
	hourlyActivity  map[string]int // "2026-08-29T14" → task count
	providerUsage   map[string]int
}

// pruneHourly drops activity buckets past retention, keys that fail to
// parse included. Runs only when a new hour bucket opens, so the scan
// amortizes to once per agent-hour.
func (a *agentState) pruneHourly(now time.Time) {
	cutoff := now.Add(-hourlyActivityRetention)
	for k := range a.hourlyActivity {
		ts, err := time.Parse(hourKeyFormat, k)
		if err != nil || ts.Before(cutoff) {
			delete(a.hourlyActivity, k)
		}
	}
}

// providerState holds one provider's live counters. Guarded by Tracker.mu.
type providerState struct {
	requests      int64
	errors        int64
	totalCost     float64
	responseTimes *Window
}

// Tracker is the shared in-memory statistics store. Ingestion goroutines
// write concurrently while the optimizer and reconciler read snapshots;
// one RWMutex guards both maps and every window behind them. Entries are
// created on write only: reads of unknown keys return zero values without
// materializing state.
type Tracker struct {
	mu         sync.RWMutex
	agents     map[string]*agentState
	providers  map[string]*providerState
	recent     []model.Metric // ring of the most recent metrics across all agents
	recentNext int
	recentFull bool

	windowSize int
}

// NewTracker creates a tracker with the given response-time window size
// (per agent and per provider) and recent-metrics ring capacity.
func NewTracker(windowSize, recentSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	if recentSize <= 0 {
		recentSize = 1000
	}
	return &Tracker{
		agents:     make(map[string]*agentState),
		providers:  make(map[string]*providerState),
		recent:     make([]model.Metric, 0, recentSize),
		windowSize: windowSize,
	}
}

// Observe applies one task execution to the agent and provider state and
// returns the agent snapshot from BEFORE the event was applied; the
// cost-spike alert rule compares against the prior running average.
func (t *Tracker) Observe(ev model.TaskExecution) model.AgentStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := t.agents[ev.AgentID]
	if a == nil {
		a = &agentState{
			agentType:      ev.AgentType,
			responseTimes:  NewWindow(t.windowSize),
			hourlyActivity: make(map[string]int),
			providerUsage:  make(map[string]int),
		}
		t.agents[ev.AgentID] = a
	}

	prior := a.snapshot(ev.AgentID)

	a.agentType = ev.AgentType
	a.totalTasks++
	if ev.Success {
		a.successfulTasks++
	} else {
		a.failedTasks++
	}
	a.totalCost += ev.Cost
	a.totalTokens += ev.TokensUsed
	a.responseTimes.Push(ev.DurationMs)
	now := time.Now().UTC()
	if ev.CompletedAt != nil {
		now = ev.CompletedAt.UTC()
	}
	a.lastActive = now
	key := now.Format(hourKeyFormat)
	if _, ok := a.hourlyActivity[key]; !ok {
		a.pruneHourly(now)
	}
	a.hourlyActivity[key]++
	if ev.Provider != "" {
		a.providerUsage[ev.Provider]++
	}

	if ev.Provider != "" {
		p := t.providers[ev.Provider]
		if p == nil {
			p = &providerState{responseTimes: NewWindow(t.windowSize)}
			t.providers[ev.Provider] = p
		}
		p.requests++
		if !ev.Success {
			p.errors++
		}
		p.totalCost += ev.Cost
		p.responseTimes.Push(ev.DurationMs)
	}

	return prior
}

// Remember appends raw metrics to the recent-metrics ring.
func (t *Tracker) Remember(metrics ...model.Metric) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range metrics {
		if !t.recentFull && len(t.recent) < cap(t.recent) {
			t.recent = append(t.recent, m)
			if len(t.recent) == cap(t.recent) {
				t.recentFull = true
			}
			continue
		}
		t.recent[t.recentNext] = m
		t.recentNext = (t.recentNext + 1) % cap(t.recent)
	}
}

// Recent returns up to n of the most recently remembered metrics,
// newest first, without touching durable storage.
func (t *Tracker) Recent(n int) []model.Metric {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := len(t.recent)
	if n > size {
		n = size
	}
	out := make([]model.Metric, 0, n)
	// Walk backwards from the most recent write position.
	idx := t.recentNext - 1
	if !t.recentFull {
		idx = size - 1
	}
	for range n {
		if idx < 0 {
			idx = size - 1
		}
		out = append(out, t.recent[idx])
		idx--
	}
	return out
}

// Agent returns the snapshot for one agent; ok is false when the agent has
// never been observed (no state is created on read).
func (t *Tracker) Agent(agentID string) (model.AgentStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.agents[agentID]
	if !ok {
		return model.AgentStats{AgentID: agentID}, false
	}
	return a.snapshot(agentID), true
}

// Agents returns snapshots of every tracked agent, sorted by agent ID.
func (t *Tracker) Agents() []model.AgentStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.AgentStats, 0, len(t.agents))
	for id, a := range t.agents {
		out = append(out, a.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Providers returns snapshots of every tracked provider, sorted by name.
func (t *Tracker) Providers() []model.ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.ProviderStats, 0, len(t.providers))
	for name, p := range t.providers {
		out = append(out, model.ProviderStats{
			Provider:      name,
			Requests:      p.requests,
			Errors:        p.errors,
			TotalCost:     p.totalCost,
			AvgResponseMs: p.responseTimes.Mean(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// SeedAgent rebuilds one agent's counters from a durable summary row.
// Memory is never the source of truth: on restart the tracker is
// reconstructed from agent_performance_summary before ingestion resumes.
func (t *Tracker) SeedAgent(s model.AgentStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := &agentState{
		agentType:       s.AgentType,
		totalTasks:      s.TotalTasks,
		successfulTasks: s.SuccessfulTasks,
		failedTasks:     s.FailedTasks,
		totalCost:       s.TotalCost,
		totalTokens:     s.TotalTokens,
		responseTimes:   NewWindow(t.windowSize),
		lastActive:      s.LastActive,
		hourlyActivity:  make(map[string]int),
		providerUsage:   make(map[string]int),
	}
	a.responseTimes.Seed(s.AvgResponseMs, int(min(s.TotalTasks, int64(t.windowSize))))
	t.agents[s.AgentID] = a
}

// SeedProvider rebuilds one provider's counters from durable daily totals.
func (t *Tracker) SeedProvider(s model.ProviderStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &providerState{
		requests:      s.Requests,
		errors:        s.Errors,
		totalCost:     s.TotalCost,
		responseTimes: NewWindow(t.windowSize),
	}
	p.responseTimes.Seed(s.AvgResponseMs, int(min(s.Requests, int64(t.windowSize))))
	t.providers[s.Provider] = p
}

// RegisterMetrics registers observable OTEL gauges for tracker depth.
func (t *Tracker) RegisterMetrics() {
	meter := telemetry.Meter("keiryo/rolling")

	_, _ = meter.Int64ObservableGauge("keiryo.rolling.agents",
		metric.WithDescription("Number of agents with live in-memory stats"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			t.mu.RLock()
			n := len(t.agents)
			t.mu.RUnlock()
			o.Observe(int64(n))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("keiryo.rolling.providers",
		metric.WithDescription("Number of providers with live in-memory stats"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			t.mu.RLock()
			n := len(t.providers)
			t.mu.RUnlock()
			o.Observe(int64(n))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("keiryo.rolling.recent_depth",
		metric.WithDescription("Current number of metrics in the recent-activity ring"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			t.mu.RLock()
			n := len(t.recent)
			t.mu.RUnlock()
			o.Observe(int64(n))
			return nil
		}),
	)
}

func (a *agentState) snapshot(agentID string) model.AgentStats {
	hourly := make(map[string]int, len(a.hourlyActivity))
	for k, v := range a.hourlyActivity {
		hourly[k] = v
	}
	usage := make(map[string]int, len(a.providerUsage))
	for k, v := range a.providerUsage {
		usage[k] = v
	}
	return model.AgentStats{
		AgentID:         agentID,
		AgentType:       a.agentType,
		TotalTasks:      a.totalTasks,
		SuccessfulTasks: a.successfulTasks,
		FailedTasks:     a.failedTasks,
		TotalCost:       a.totalCost,
		TotalTokens:     a.totalTokens,
		AvgResponseMs:   a.responseTimes.Mean(),
		LastActive:      a.lastActive,
		HourlyActivity:  hourly,
		ProviderUsage:   usage,
	}
}
