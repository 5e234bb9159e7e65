package balance

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ashita-ai/keiryo/internal/config"
	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/rolling"
)

// dimension names the performance axis an agent is breaching. The
// recommender picks the provider ranking that repairs that axis.
type dimension int

const (
	dimNone dimension = iota
	dimSuccess
	dimLatency
	dimCost
)

// Recommender rebinds underperforming agents to the provider best suited
// to the dimension they are breaching.
type Recommender struct {
	tracker    *rolling.Tracker
	dispatcher Dispatcher
	th         config.Thresholds
	logger     *slog.Logger
}

// NewRecommender creates a remediation recommender.
func NewRecommender(tracker *rolling.Tracker, dispatcher Dispatcher, th config.Thresholds, logger *slog.Logger) *Recommender {
	return &Recommender{tracker: tracker, dispatcher: dispatcher, th: th, logger: logger}
}

// breach reports which dimension, if any, the agent is violating. Success
// rate wins over latency, latency over cost, so an agent failing on several
// axes is repaired on the most severe one first. The success-rate check is
// sample-gated so a couple of early failures do not trigger a rebind.
func (r *Recommender) breach(a model.AgentStats) dimension {
	switch {
	case a.TotalTasks > r.th.MinSamplesRemediation && a.SuccessRate() < r.th.LowSuccessRatePct:
		return dimSuccess
	case a.AvgResponseMs > float64(r.th.SlowAgentMs):
		return dimLatency
	case a.CostPerTask() > r.th.CostPerTaskUSD:
		return dimCost
	default:
		return dimNone
	}
}

// bestProvider ranks providers with at least one observed request along
// the given dimension and returns the winner. Ties resolve by provider
// name so repeated cycles stay deterministic. The bool is false when no
// provider has data yet.
func bestProvider(providers []model.ProviderStats, dim dimension) (string, bool) {
	ranked := providers[:0:0]
	for _, p := range providers {
		if p.Requests > 0 {
			ranked = append(ranked, p)
		}
	}
	if len(ranked) == 0 {
		return "", false
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch dim {
		case dimSuccess:
			if a.SuccessRate() != b.SuccessRate() {
				return a.SuccessRate() > b.SuccessRate()
			}
		case dimLatency:
			if a.AvgResponseMs != b.AvgResponseMs {
				return a.AvgResponseMs < b.AvgResponseMs
			}
		case dimCost:
			if a.CostPerRequest() != b.CostPerRequest() {
				return a.CostPerRequest() < b.CostPerRequest()
			}
		}
		return a.Provider < b.Provider
	})
	return ranked[0].Provider, true
}

// Recommend walks every tracked agent, and for each one breaching a
// threshold rebinds it to the top provider of the matching ranking.
// Dispatcher failures are logged per agent; the cycle continues.
func (r *Recommender) Recommend(ctx context.Context) {
	providers := r.tracker.Providers()

	for _, agent := range r.tracker.Agents() {
		dim := r.breach(agent)
		if dim == dimNone {
			continue
		}
		target, ok := bestProvider(providers, dim)
		if !ok {
			r.logger.Debug("no provider data, skipping recommendation", "agent_id", agent.AgentID)
			continue
		}
		if err := r.dispatcher.SetAgentProvider(ctx, agent.AgentID, target); err != nil {
			r.logger.Warn("balance: provider rebind failed",
				"agent_id", agent.AgentID, "provider", target, "error", err)
			continue
		}
		r.logger.Info("agent rebound to provider",
			"agent_id", agent.AgentID, "provider", target, "dimension", dimName(dim))
	}
}

func dimName(d dimension) string {
	switch d {
	case dimSuccess:
		return "success_rate"
	case dimLatency:
		return "latency"
	case dimCost:
		return "cost"
	default:
		return "none"
	}
}
