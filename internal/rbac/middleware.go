package rbac

import (
	"log/slog"
	"net/http"

	"github.com/worksite-pm/worksite/internal/platform/httpx"
	"github.com/worksite-pm/worksite/internal/shared"
)

// Middleware gates HTTP handlers behind Gate decisions.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// RequireCan lets the request through only when the session principal may
// perform action on resource. Anonymous callers get 401, everyone else who
// is denied gets 403.
func (m Middleware) RequireCan(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			decision := m.Gate.Check(r.Context(), principal, resource, action)
			switch {
			case decision.Allowed:
				next.ServeHTTP(w, r)
			case decision.Outcome == OutcomeUnauthenticated:
				httpx.RespondError(w, httpx.ErrUnauthorized)
			default:
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.String("principal", principal.Key()),
						slog.String("resource", resource),
						slog.String("action", action),
						slog.String("outcome", string(decision.Outcome)))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
			}
		})
	}
}
