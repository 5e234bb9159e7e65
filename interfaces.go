package keiryo

import "context"

// TelemetrySink is the ingestion hook handed to the task dispatcher.
// Wire it explicitly:
//
//	dispatcher.OnTaskComplete(app.Sink().RecordTaskExecution)
//
// RecordTaskExecution never returns an error and never blocks on a broken
// store: missing event fields are defaulted and storage failures are
// logged, so the dispatcher's task flow is never disturbed by telemetry.
type TelemetrySink interface {
	RecordTaskExecution(ctx context.Context, ev TaskExecution)
}

// Dispatcher is the external load balancer Keiryo pushes adaptive weights
// and remediation rebinds into. Keiryo observes and recommends; it never
// routes or executes tasks itself.
type Dispatcher interface {
	// SetProviderWeight updates one provider's dispatch weight in [0.1, 1.0].
	SetProviderWeight(ctx context.Context, provider string, weight float64) error
	// SetAgentProvider rebinds an agent to a provider.
	SetAgentProvider(ctx context.Context, agentID, provider string) error
}
