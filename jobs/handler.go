package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/worksite-pm/worksite/internal/platform/httpx"
	"github.com/worksite-pm/worksite/internal/shared"
)

// QueueService is the part of Queue the HTTP handler needs.
type QueueService interface {
	Stats() (QueueStats, error)
	EnqueueSessionSweep(ctx context.Context) (*asynq.TaskInfo, error)
}

// Authorizer gates a route on a capability check.
type Authorizer interface {
	RequireCan(resource, action string) func(http.Handler) http.Handler
}

// Handler exposes queue health and manual triggers over HTTP.
type Handler struct {
	queue  QueueService
	authz  Authorizer
	logger *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil queue reports an empty
// default queue and refuses triggers; a nil authz mounts the routes ungated.
func NewHandler(queue QueueService, authz Authorizer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{queue: queue, authz: authz, logger: logger}
}

// MountRoutes attaches job routes. Reading queue health needs
// administration/read, triggering a task needs administration/update.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.require(shared.ActionRead)).Get("/health", h.health)
	r.With(h.require(shared.ActionUpdate)).Post("/session-sweep", h.triggerSessionSweep)
}

func (h *Handler) require(action string) func(http.Handler) http.Handler {
	if h.authz == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.authz.RequireCan(shared.ResourceAdministration, action)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.JSON(w, http.StatusOK, QueueStats{Queue: QueueDefault})
		return
	}
	stats, err := h.queue.Stats()
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) triggerSessionSweep(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	info, err := h.queue.EnqueueSessionSweep(r.Context())
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task": info.Type, "id": info.ID})
	case errors.Is(err, asynq.ErrDuplicateTask):
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task": TaskSessionSweep, "status": "already_queued"})
	default:
		h.logger.Error("enqueue session sweep", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
	}
}
