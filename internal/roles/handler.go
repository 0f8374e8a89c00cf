package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worksite-pm/worksite/internal/platform/httpx"
	"github.com/worksite-pm/worksite/internal/shared"
)

// Handler exposes the caller's resolved role.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, resolver: resolver}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.currentRole)
}

func (h *Handler) currentRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	res, err := h.resolver.ResolveMembership(r.Context(), principal)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	case err != nil:
		h.logger.Error("resolve role", slog.String("principal", principal.Key()), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Role Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
