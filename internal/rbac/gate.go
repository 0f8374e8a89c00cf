package rbac

import (
	"context"
	"errors"
	"log/slog"

	"github.com/worksite-pm/worksite/internal/roles"
	"github.com/worksite-pm/worksite/internal/shared"
)

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger used to report failed checks.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder attaches decision instrumentation.
func WithRecorder(rec DecisionRecorder) GateOption {
	return func(g *Gate) {
		g.recorder = rec
	}
}

// Gate is the single capability-check entry point. It never reports errors:
// every failure is a denial.
type Gate struct {
	sessions SessionChecker
	roles    RoleResolver
	policy   PolicyEvaluator
	logger   *slog.Logger
	recorder DecisionRecorder
}

// NewGate constructs a Gate.
func NewGate(sessions SessionChecker, roles RoleResolver, policy PolicyEvaluator, opts ...GateOption) *Gate {
	g := &Gate{
		sessions: sessions,
		roles:    roles,
		policy:   policy,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Can reports whether p may perform action on resource.
func (g *Gate) Can(ctx context.Context, p shared.Principal, resource, action string) bool {
	return g.Check(ctx, p, resource, action).Allowed
}

// Check is Can with the terminal outcome exposed.
func (g *Gate) Check(ctx context.Context, p shared.Principal, resource, action string) Decision {
	if g == nil {
		return Decision{Outcome: OutcomeError}
	}
	outcome := g.decide(ctx, p, resource, action)
	if g.recorder != nil {
		g.recorder.RecordDecision(resource, action, outcome)
	}
	return Decision{Allowed: outcome == OutcomeAllow, Outcome: outcome}
}

func (g *Gate) decide(ctx context.Context, p shared.Principal, resource, action string) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("rbac check panicked",
				slog.String("principal", p.Key()),
				slog.String("resource", resource),
				slog.String("action", action),
				slog.Any("panic", rec))
			outcome = OutcomeError
		}
	}()

	if g.sessions == nil || g.roles == nil || g.policy == nil {
		g.logger.Error("rbac gate not configured")
		return OutcomeError
	}
	if !p.Authenticated() {
		return OutcomeUnauthenticated
	}
	if out, ok := g.sessionOutcome(ctx, p); !ok {
		return out
	}

	role, err := g.roles.Resolve(ctx, p)
	if err != nil {
		if errors.Is(err, roles.ErrNotFound) {
			g.logger.Debug("rbac principal has no role", slog.String("principal", p.Key()))
			return OutcomeNoRole
		}
		g.logger.Error("rbac resolve role",
			slog.String("principal", p.Key()),
			slog.String("resource", resource),
			slog.String("action", action),
			slog.Any("error", err))
		return OutcomeError
	}

	if !g.policy.Evaluate(role, resource, action) {
		return OutcomeDeny
	}

	// The session may have ended while the role was being resolved.
	if out, ok := g.sessionOutcome(ctx, p); !ok {
		return out
	}
	return OutcomeAllow
}

func (g *Gate) sessionOutcome(ctx context.Context, p shared.Principal) (Outcome, bool) {
	active, err := g.sessions.SessionActive(ctx, p)
	if err != nil {
		g.logger.Error("rbac session check", slog.String("principal", p.Key()), slog.Any("error", err))
		return OutcomeError, false
	}
	if !active {
		return OutcomeUnauthenticated, false
	}
	return "", true
}
