package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/worksite-pm/worksite/internal/platform/httpx"
	"github.com/worksite-pm/worksite/internal/shared"
)

// RoleInvalidator drops cached roles when a principal logs in or out.
type RoleInvalidator interface {
	Invalidate(ctx context.Context, p shared.Principal) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	roles          RoleInvalidator
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. roles may be nil.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, roles RoleInvalidator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		roles:          roles,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
	r.Get("/check", h.handleCheck)
	r.Get("/identity", h.handleIdentity)
	r.Put("/password", h.handlePassword)
}

type credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type passwordForm struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, errors.New("session missing"))
		return
	}
	var form credentials
	if !h.decode(w, r, &form) {
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	h.sessionManager.Renew(sess)
	sess.SetUser(user.ID.String())
	sess.SetCompany("")
	h.csrfManager.Reset(sess)
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		// Without the postgres record every capability check would deny.
		h.logger.Error("register session", slog.Any("error", err))
		sess.SetUser("")
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	if h.roles != nil {
		p := shared.Principal{UserID: user.ID, SessionID: sess.ID}
		if err := h.roles.Invalidate(r.Context(), p); err != nil {
			h.logger.Warn("invalidate role", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, Identity{ID: user.ID, Email: user.Email, Name: user.Email})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form credentials
	if !h.decode(w, r, &form) {
		return
	}
	user, err := h.service.Register(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrEmailTaken) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", "email already registered")
			return
		}
		h.logger.Error("register user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, Identity{ID: user.ID, Email: user.Email, Name: user.Email})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if p, ok := shared.PrincipalFromSession(sess); ok && h.roles != nil {
			if err := h.roles.Invalidate(r.Context(), p); err != nil {
				h.logger.Warn("invalidate role", slog.Any("error", err))
			}
		}
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	active, err := h.service.SessionActive(r.Context(), p)
	if err != nil {
		h.logger.Error("session check", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	if !active {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	identity, err := h.service.Identity(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.logger.Error("load identity", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, identity)
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var form passwordForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.service.UpdatePassword(r.Context(), p.UserID, form.Password); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.logger.Error("update password", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
