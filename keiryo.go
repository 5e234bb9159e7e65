// Package keiryo is the public API for embedding the Keiryo agent
// performance telemetry engine.
//
// A host process (typically the task dispatcher) constructs the engine,
// hands its completion hook to the dispatcher, and runs it:
//
//	app, err := keiryo.New(
//	    keiryo.WithVersion(version),
//	    keiryo.WithLogger(logger),
//	    keiryo.WithDispatcher(myDispatcher),
//	)
//	if err != nil { ... }
//	dispatcher.OnTaskComplete(app.Sink().RecordTaskExecution)
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: keiryo (root) imports
// internal/*, but internal/* never imports keiryo (root). Public types
// (TaskExecution, Summary, etc.) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file
// that sees both sides of the boundary.
package keiryo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/keiryo/internal/config"
	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/rolling"
	"github.com/ashita-ai/keiryo/internal/server"
	"github.com/ashita-ai/keiryo/internal/service/alerts"
	"github.com/ashita-ai/keiryo/internal/service/balance"
	"github.com/ashita-ai/keiryo/internal/service/ingest"
	"github.com/ashita-ai/keiryo/internal/service/query"
	"github.com/ashita-ai/keiryo/internal/service/rollup"
	"github.com/ashita-ai/keiryo/internal/storage"
	"github.com/ashita-ai/keiryo/internal/telemetry"
	"github.com/ashita-ai/keiryo/migrations"
)

// Loop failure backoff bounds. After consecutive cycle failures the loop
// waits backoffBase, doubling up to backoffMax, before resuming its ticker.
const (
	backoffBase = 30 * time.Second
	backoffMax  = 120 * time.Second
)

// App is the Keiryo engine lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	tracker      *rolling.Tracker
	recorder     *ingest.Recorder
	evaluator    *alerts.Evaluator
	queries      *query.Service
	optimizer    *balance.Optimizer
	recommender  *balance.Recommender
	aggregator   *rollup.Aggregator
	reconciler   *rollup.Reconciler
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Keiryo engine. It connects to the database, runs
// migrations, and wires all subsystems. It does NOT start any goroutines
// or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("keiryo starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	tracker := rolling.NewTracker(cfg.ResponseWindowSize, cfg.RecentMetricsSize)
	tracker.RegisterMetrics()

	evaluator := alerts.NewEvaluator(db, cfg.Thresholds, logger)
	recorder := ingest.NewRecorder(db, tracker, evaluator, logger)
	queries := query.New(db, tracker, logger)

	var optimizer *balance.Optimizer
	var recommender *balance.Recommender
	if o.dispatcher != nil {
		optimizer = balance.NewOptimizer(tracker, o.dispatcher, logger)
		recommender = balance.NewRecommender(tracker, o.dispatcher, cfg.Thresholds, logger)
	} else {
		logger.Info("dispatcher: not wired, optimize cycle disabled")
	}

	aggregator := rollup.NewAggregator(db, cfg.RetentionDays, logger)
	retry := storage.NewRetryPolicy(cfg.SummaryRetryAttempts, cfg.SummaryRetryDelay, logger)
	reconciler := rollup.NewReconciler(db, tracker, retry, logger)
	if o.clock != nil {
		aggregator = aggregator.WithNow(o.clock)
		reconciler = reconciler.WithNow(o.clock)
	}

	srv := server.New(server.ServerConfig{
		Stats:        queries,
		Resolver:     evaluator,
		Pinger:       db,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Version:      version,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		tracker:      tracker,
		recorder:     recorder,
		evaluator:    evaluator,
		queries:      queries,
		optimizer:    optimizer,
		recommender:  recommender,
		aggregator:   aggregator,
		reconciler:   reconciler,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run seeds the in-memory tracker from the durable summaries, then starts
// the HTTP server and the background cycles, blocking until ctx is
// cancelled or the server fails. Resources are released before returning.
func (a *App) Run(ctx context.Context) error {
	// Memory is a cache of the summary tables, not the source of truth;
	// a failed seed starts empty and the reconcile cycle rebuilds it.
	if err := a.reconciler.Seed(ctx); err != nil {
		a.logger.Warn("tracker seed failed, starting with empty stats", "error", err)
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutCtx)
	})

	if a.optimizer != nil {
		g.Go(func() error {
			a.runLoop(runCtx, "optimize", a.cfg.OptimizeInterval, func(opCtx context.Context) error {
				a.optimizer.Reweigh(opCtx)
				a.recommender.Recommend(opCtx)
				return nil
			})
			return nil
		})
	}
	g.Go(func() error {
		a.runLoop(runCtx, "rollup", a.cfg.RollupInterval, a.aggregator.Run)
		return nil
	})
	g.Go(func() error {
		a.runLoop(runCtx, "reconcile", a.cfg.ReconcileInterval, a.reconciler.Run)
		return nil
	})

	err := g.Wait()

	// Final flush so a restart seeds from counters no older than one
	// reconcile interval.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if ferr := a.reconciler.Run(flushCtx); ferr != nil {
		a.logger.Warn("final summary flush failed", "error", ferr)
	}
	cancel()

	a.db.Close()
	_ = a.otelShutdown(context.Background())
	a.logger.Info("keiryo stopped")
	return err
}

// runLoop drives one background cycle on a ticker. Each tick runs under a
// timeout derived from the interval; failures are logged and the loop
// continues, backing off exponentially while failures persist.
func (a *App) runLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, tickTimeout(interval))
			err := fn(opCtx)
			cancel()
			if err == nil {
				if failures > 0 {
					a.logger.Info("cycle recovered", "loop", name, "after_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			delay := backoffDelay(failures)
			a.logger.Warn("cycle failed",
				"loop", name, "error", err, "consecutive", failures, "backoff", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// tickTimeout bounds one cycle to its interval, capped at five minutes.
func tickTimeout(interval time.Duration) time.Duration {
	const cap = 5 * time.Minute
	if interval < cap {
		return interval
	}
	return cap
}

// backoffDelay doubles from backoffBase per consecutive failure, capped
// at backoffMax.
func backoffDelay(failures int) time.Duration {
	d := backoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}

// Sink exposes the ingestion hook for the dispatcher's completion callback.
func (a *App) Sink() TelemetrySink {
	return sinkAdapter{recorder: a.recorder}
}

// GetAgentPerformanceSummary returns the current fleet summary. It never
// returns an error: a degraded store sets Summary.Error and the in-memory
// statistics are still populated.
func (a *App) GetAgentPerformanceSummary(ctx context.Context) Summary {
	return toPublicSummary(a.queries.Summary(ctx))
}

// GetPerformanceTrends returns rolled-up history over the trailing window
// of hours, same degradation contract as GetAgentPerformanceSummary.
func (a *App) GetPerformanceTrends(ctx context.Context, hours int) Trends {
	return toPublicTrends(a.queries.Trends(ctx, hours))
}

// ── Adapters ──────────────────────────────────────────────────────────────────

// sinkAdapter bridges the public TelemetrySink to the internal recorder.
type sinkAdapter struct {
	recorder *ingest.Recorder
}

func (s sinkAdapter) RecordTaskExecution(ctx context.Context, ev TaskExecution) {
	s.recorder.RecordTaskExecution(ctx, model.TaskExecution{
		TaskID:        ev.TaskID,
		AgentID:       ev.AgentID,
		AgentType:     ev.AgentType,
		TaskName:      ev.TaskName,
		Success:       ev.Success,
		DurationMs:    ev.DurationMs,
		TokensUsed:    ev.TokensUsed,
		Cost:          ev.Cost,
		Provider:      ev.Provider,
		StartedAt:     ev.StartedAt,
		CompletedAt:   ev.CompletedAt,
		Status:        ev.Status,
		ErrorMessage:  ev.ErrorMessage,
		FilesCreated:  ev.FilesCreated,
		FilesModified: ev.FilesModified,
	})
}

// ── Type converters ───────────────────────────────────────────────────────────

func toPublicSummary(s model.Summary) Summary {
	out := Summary{
		Overall: OverallStats{
			TotalTasks:      s.Overall.TotalTasks,
			SuccessfulTasks: s.Overall.SuccessfulTasks,
			FailedTasks:     s.Overall.FailedTasks,
			SuccessRate:     s.Overall.SuccessRate,
			TotalCost:       s.Overall.TotalCost,
			TotalTokens:     s.Overall.TotalTokens,
			AvgResponseMs:   s.Overall.AvgResponseMs,
			ActiveAgents:    s.Overall.ActiveAgents,
		},
		Agents:    make([]AgentStats, len(s.Agents)),
		Providers: make(map[string]ProviderStats, len(s.Providers)),
		Error:     s.Error,
	}
	for i, a := range s.Agents {
		out.Agents[i] = AgentStats{
			AgentID:         a.AgentID,
			AgentType:       a.AgentType,
			TotalTasks:      a.TotalTasks,
			SuccessfulTasks: a.SuccessfulTasks,
			FailedTasks:     a.FailedTasks,
			SuccessRate:     a.SuccessRate(),
			TotalCost:       a.TotalCost,
			CostPerTask:     a.CostPerTask(),
			TotalTokens:     a.TotalTokens,
			AvgResponseMs:   a.AvgResponseMs,
			LastActive:      a.LastActive,
		}
	}
	for name, p := range s.Providers {
		out.Providers[name] = ProviderStats{
			Provider:      p.Provider,
			Requests:      p.Requests,
			Errors:        p.Errors,
			SuccessRate:   p.SuccessRate(),
			TotalCost:     p.TotalCost,
			AvgResponseMs: p.AvgResponseMs,
		}
	}
	for _, al := range s.ActiveAlerts {
		out.ActiveAlerts = append(out.ActiveAlerts, Alert{
			ID:             al.ID,
			Level:          string(al.Level),
			Title:          al.Title,
			Description:    al.Description,
			MetricKind:     string(al.MetricKind),
			ThresholdValue: al.ThresholdValue,
			ActualValue:    al.ActualValue,
			AgentID:        al.AgentID,
			CreatedAt:      al.CreatedAt,
			Resolved:       al.Resolved,
			ResolvedAt:     al.ResolvedAt,
		})
	}
	return out
}

func toPublicTrends(tr model.Trends) Trends {
	out := Trends{WindowHours: tr.WindowHours, Error: tr.Error}
	for _, h := range tr.Hourly {
		out.Hourly = append(out.Hourly, HourlyPoint{
			HourBucket:     h.HourBucket,
			AgentType:      h.AgentType,
			TasksCompleted: h.TasksCompleted,
			SuccessRate:    h.SuccessRate,
			AvgResponseMs:  h.AvgResponseMs,
			TotalCost:      h.TotalCost,
			TotalTokens:    h.TotalTokens,
		})
	}
	for _, p := range tr.AgentTypes {
		out.AgentTypes = append(out.AgentTypes, AgentTypePerformance{
			AgentType:      p.AgentType,
			TasksCompleted: p.TasksCompleted,
			SuccessRate:    p.SuccessRate,
			AvgResponseMs:  p.AvgResponseMs,
			TotalCost:      p.TotalCost,
			TotalTokens:    p.TotalTokens,
		})
	}
	return out
}
