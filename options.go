package keiryo

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	dispatcher  Dispatcher
	clock       func() time.Time
}

// WithPort overrides the TCP port from config (KEIRYO_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDispatcher wires the external load balancer that receives provider
// weights and agent rebinds. Without it the optimize cycle is disabled;
// ingestion, alerting, and the read API still run.
func WithDispatcher(d Dispatcher) Option {
	return func(o *resolvedOptions) { o.dispatcher = d }
}

// WithClock overrides the wall clock used by the rollup and reconcile
// cycles. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}
