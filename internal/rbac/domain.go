package rbac

import (
	"context"

	"github.com/worksite-pm/worksite/internal/shared"
)

// SessionChecker reports whether the principal's session is still active.
type SessionChecker interface {
	SessionActive(ctx context.Context, p shared.Principal) (bool, error)
}

// RoleResolver maps a principal to its role in the active company.
type RoleResolver interface {
	Resolve(ctx context.Context, p shared.Principal) (string, error)
}

// PolicyEvaluator decides whether role may perform action on resource.
type PolicyEvaluator interface {
	Evaluate(role, resource, action string) bool
}

// Outcome classifies how a check terminated.
type Outcome string

const (
	OutcomeAllow           Outcome = "allow"
	OutcomeDeny            Outcome = "deny"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeNoRole          Outcome = "no_role"
	OutcomeError           Outcome = "error"
)

// Decision is the result of a single check. Only OutcomeAllow carries
// Allowed == true.
type Decision struct {
	Allowed bool    `json:"allowed"`
	Outcome Outcome `json:"outcome"`
}

// DecisionRecorder observes gate decisions.
type DecisionRecorder interface {
	RecordDecision(resource, action string, outcome Outcome)
}
