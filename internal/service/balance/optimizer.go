// Package balance converts provider statistics into normalized dispatch
// weights and per-agent provider recommendations for the external
// dispatcher.
package balance

import (
	"context"
	"log/slog"
	"math"

	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/rolling"
)

// Dispatcher is the external load-balancing collaborator. Keiryo only
// pushes weights and recommendations into it; it never executes anything.
type Dispatcher interface {
	// SetProviderWeight updates one provider's dispatch weight in [0.1, 1.0].
	SetProviderWeight(ctx context.Context, provider string, weight float64) error
	// SetAgentProvider rebinds an agent to a provider.
	SetAgentProvider(ctx context.Context, agentID, provider string) error
}

const (
	// minWeight is the floor below which no provider drops; nothing is
	// ever fully starved of traffic.
	minWeight = 0.1
	// defaultWeight is the exploration bias for providers with no samples.
	defaultWeight = 1.0

	successWeight = 0.7
	speedWeight   = 0.3
)

// Optimizer computes provider weights from rolling stats on a periodic
// cycle and pushes them to the dispatcher.
type Optimizer struct {
	tracker    *rolling.Tracker
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewOptimizer creates a weight optimizer.
func NewOptimizer(tracker *rolling.Tracker, dispatcher Dispatcher, logger *slog.Logger) *Optimizer {
	return &Optimizer{tracker: tracker, dispatcher: dispatcher, logger: logger}
}

// Weight converts one provider snapshot into a dispatch weight.
//
// Providers with zero requests get the neutral default 1.0: an unused or
// brand-new provider is not penalized for its lack of data, which keeps
// some traffic exploring it. With samples, success rate dominates (70%)
// and a latency-derived speed score fills the rest (30%); the result is
// floored at 0.1.
func Weight(p model.ProviderStats) float64 {
	if p.Requests == 0 {
		return defaultWeight
	}
	speedScore := math.Max(0, 100-p.AvgResponseMs/100)
	overall := p.SuccessRate()*successWeight + speedScore*speedWeight
	return math.Max(minWeight, overall/100)
}

// Reweigh computes and pushes a weight for every tracked provider. Push
// failures are logged per provider; the cycle continues.
func (o *Optimizer) Reweigh(ctx context.Context) {
	for _, p := range o.tracker.Providers() {
		w := Weight(p)
		if err := o.dispatcher.SetProviderWeight(ctx, p.Provider, w); err != nil {
			o.logger.Warn("balance: weight push failed", "provider", p.Provider, "error", err)
			continue
		}
		o.logger.Debug("provider weight updated", "provider", p.Provider, "weight", w)
	}
}
