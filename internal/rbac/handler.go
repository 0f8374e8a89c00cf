package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/worksite-pm/worksite/internal/platform/httpx"
	"github.com/worksite-pm/worksite/internal/shared"
)

const maxBatchChecks = 64

// Handler exposes capability checks to the presentation layer.
type Handler struct {
	logger    *slog.Logger
	gate      *Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, gate *Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, validator: validator.New()}
}

// MountRoutes registers capability routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/can", h.can)
	r.Post("/check", h.check)
}

type capability struct {
	Resource string `json:"resource" validate:"required,max=128"`
	Action   string `json:"action" validate:"required,max=64"`
}

type checkRequest struct {
	Checks []capability `json:"checks" validate:"required,min=1,max=64,dive"`
}

type checkResult struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Can      bool   `json:"can"`
}

type checkResponse struct {
	Results []checkResult `json:"results"`
}

// can answers a single check. A denial is a normal 200 response: the caller
// hides or disables the affordance.
func (h *Handler) can(w http.ResponseWriter, r *http.Request) {
	q := capability{
		Resource: r.URL.Query().Get("resource"),
		Action:   r.URL.Query().Get("action"),
	}
	if err := h.validator.Struct(q); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]bool{"can": h.gate.Can(r.Context(), principal, q.Resource, q.Action)})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if len(req.Checks) > maxBatchChecks {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "too many checks")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	resp := checkResponse{Results: make([]checkResult, 0, len(req.Checks))}
	for _, c := range req.Checks {
		resp.Results = append(resp.Results, checkResult{
			Resource: c.Resource,
			Action:   c.Action,
			Can:      h.gate.Can(r.Context(), principal, c.Resource, c.Action),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
