package rollup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashita-ai/keiryo/internal/rolling"
	"github.com/ashita-ai/keiryo/internal/storage"
)

// Reconciler flows in-memory tracker snapshots into the durable summary
// tables. Ingestion writes per-metric rows with autocommit, so the
// summaries lag slightly between cycles; this loop closes the gap, and on
// restart the tracker is rebuilt from the same tables.
type Reconciler struct {
	db      *storage.DB
	tracker *rolling.Tracker
	retry   storage.RetryPolicy
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a reconciler. Contended upserts retry per the
// given policy.
func NewReconciler(db *storage.DB, tracker *rolling.Tracker, retry storage.RetryPolicy, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: db, tracker: tracker, retry: retry, logger: logger, now: time.Now}
}

// WithNow overrides the clock. Returns the receiver for chaining.
func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run upserts every agent summary and the current day's provider totals.
// Summary rows are contended with concurrent reconcile cycles, so each
// upsert retries on serialization failures. The first hard error aborts
// the cycle; the next tick starts from fresh snapshots anyway.
func (r *Reconciler) Run(ctx context.Context) error {
	for _, agent := range r.tracker.Agents() {
		err := r.retry.Do(ctx, "upsert agent summary", func() error {
			return r.db.UpsertAgentSummary(ctx, agent)
		})
		if err != nil {
			return err
		}
	}

	day := r.now().UTC().Truncate(24 * time.Hour)
	for _, provider := range r.tracker.Providers() {
		err := r.retry.Do(ctx, "upsert provider day", func() error {
			return r.db.UpsertProviderDay(ctx, day, provider)
		})
		if err != nil {
			return err
		}
	}

	r.logger.Debug("summaries reconciled")
	return nil
}

// Seed rebuilds the tracker from the durable summary tables. Called once
// at startup before ingestion begins.
func (r *Reconciler) Seed(ctx context.Context) error {
	agents, err := r.db.ListAgentSummaries(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		r.tracker.SeedAgent(a)
	}

	providers, err := r.db.ListProviderTotals(ctx)
	if err != nil {
		return err
	}
	for _, p := range providers {
		r.tracker.SeedProvider(p)
	}

	r.logger.Info("tracker seeded from durable summaries",
		"agents", len(agents), "providers", len(providers))
	return nil
}
