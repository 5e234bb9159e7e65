package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ashita-ai/keiryo/internal/model"
	"github.com/ashita-ai/keiryo/internal/storage"
)

// Stats answers the read queries. Implemented by query.Service.
type Stats interface {
	Summary(ctx context.Context) model.Summary
	Trends(ctx context.Context, hours int) model.Trends
	ActiveAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

// AlertResolver closes alerts. Implemented by alerts.Evaluator.
type AlertResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) error
}

// Pinger reports storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP endpoint implementations.
type Handlers struct {
	stats    Stats
	resolver AlertResolver
	pinger   Pinger
	logger   *slog.Logger
	version  string
}

// HandlersDeps holds dependencies for creating Handlers.
type HandlersDeps struct {
	Stats    Stats
	Resolver AlertResolver
	Pinger   Pinger
	Logger   *slog.Logger
	Version  string
}

// NewHandlers creates the HTTP endpoint implementations.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		stats:    deps.Stats,
		resolver: deps.Resolver,
		pinger:   deps.Pinger,
		logger:   deps.Logger,
		version:  deps.Version,
	}
}

// HandleHealth reports liveness plus storage connectivity. A broken store
// degrades the status field but still answers 200: the in-memory read path
// keeps working without Postgres.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.pinger.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// HandleSummary serves the fleet performance summary.
func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.stats.Summary(r.Context()))
}

// HandleTrends serves historical trends over a trailing window of hours
// (default 24).
func (h *Handlers) HandleTrends(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	writeJSON(w, r, http.StatusOK, h.stats.Trends(r.Context(), hours))
}

// HandleListAlerts serves the unresolved alerts, newest first.
func (h *Handlers) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.stats.ActiveAlerts(r.Context(), 10)
	if err != nil {
		h.logger.Error("list alerts failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, r, http.StatusOK, alerts)
}

// HandleResolveAlert transitions one alert from OPEN to RESOLVED.
// Resolution is terminal: resolving twice answers 409.
func (h *Handlers) HandleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("alert_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRequest, "invalid alert ID")
		return
	}

	switch err := h.resolver.Resolve(r.Context(), id); {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "alert not found")
	case errors.Is(err, storage.ErrAlreadyResolved):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "alert already resolved")
	case err != nil:
		h.logger.Error("resolve alert failed", "error", err, "alert_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to resolve alert")
	default:
		writeJSON(w, r, http.StatusOK, map[string]string{"alert_id": id.String(), "status": "resolved"})
	}
}
