package companies

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/worksite-pm/worksite/internal/platform/httpx"
	"github.com/worksite-pm/worksite/internal/rbac"
	"github.com/worksite-pm/worksite/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers company routes. Member administration is gated by
// the administration resource of the caller's active company.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.mine)
	r.Post("/", h.create)
	r.Post("/join", h.join)
	r.Post("/switch", h.switchCompany)
	r.With(h.rbac.RequireCan(shared.ResourceAdministration, shared.ActionList)).Get("/members", h.members)
	r.With(h.rbac.RequireCan(shared.ResourceAdministration, shared.ActionUpdate)).Put("/members/{userID}", h.setRole)
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	memberships, err := h.service.Mine(r.Context(), p)
	if err != nil {
		h.fail(w, "list memberships", err)
		return
	}
	if memberships == nil {
		memberships = []Membership{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"companies": memberships, "active_company_id": p.CompanyID})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var form CreateForm
	if !h.decode(w, r, &form) {
		return
	}
	company, err := h.service.Create(r.Context(), p, form)
	if err != nil {
		h.fail(w, "create company", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, company)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var form JoinForm
	if !h.decode(w, r, &form) {
		return
	}
	membership, err := h.service.Join(r.Context(), p, form)
	if err != nil {
		h.fail(w, "join company", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, membership)
}

func (h *Handler) switchCompany(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var form SwitchForm
	if !h.decode(w, r, &form) {
		return
	}
	role, err := h.service.Switch(r.Context(), p, form.CompanyID)
	if err != nil {
		h.fail(w, "switch company", err)
		return
	}
	shared.SessionFromContext(r.Context()).SetCompany(form.CompanyID.String())
	httpx.JSON(w, http.StatusOK, map[string]any{"company_id": form.CompanyID, "role": role})
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), p)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "user id must be a uuid")
		return
	}
	var form RoleForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.service.SetMemberRole(r.Context(), p, userID, form.Role); err != nil {
		h.fail(w, "set member role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
	}
	return p, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotMember):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrLastAdmin):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnknownRole), errors.Is(err, ErrRoleNotJoinable):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
