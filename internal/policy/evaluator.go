package policy

import "errors"

// Evaluator decides allow/deny for (role, resource, action) triples. It is
// immutable after construction and safe for concurrent use.
type Evaluator struct {
	rules     []Rule
	inherited map[string]map[string]struct{} // role → itself plus every reachable parent
}

// NewEvaluator builds an evaluator over set. An empty set is rejected so that
// a loading bug can never look like a valid, everything-denied policy.
func NewEvaluator(set *Set) (*Evaluator, error) {
	if set == nil || len(set.rules) == 0 {
		return nil, &ConfigError{Source: set.Source(), Err: errors.New("evaluator requires at least one rule")}
	}
	return &Evaluator{
		rules:     set.Rules(),
		inherited: inheritanceClosure(set.edges),
	}, nil
}

// Evaluate returns true when at least one rule grants action on resource to
// role, directly or through inheritance. Absence of a match is a denial.
func (e *Evaluator) Evaluate(role, resource, action string) bool {
	if e == nil || len(e.rules) == 0 || role == "" || resource == "" || action == "" {
		return false
	}
	for _, rule := range e.rules {
		if !e.actsAs(role, rule.Role) {
			continue
		}
		if !matchResource(rule.ResourcePattern, resource) {
			continue
		}
		if rule.action != nil && rule.action.MatchString(action) {
			return true
		}
	}
	return false
}

// Inherits reports whether role holds the permissions of other, either
// because they are equal or because other is reachable over inheritance edges.
func (e *Evaluator) Inherits(role, other string) bool {
	if e == nil {
		return false
	}
	return e.actsAs(role, other)
}

func (e *Evaluator) actsAs(role, ruleRole string) bool {
	if role == ruleRole {
		return true
	}
	reachable, ok := e.inherited[role]
	if !ok {
		return false
	}
	_, ok = reachable[ruleRole]
	return ok
}

func inheritanceClosure(edges []Edge) map[string]map[string]struct{} {
	parents := make(map[string][]string)
	for _, edge := range edges {
		parents[edge.Role] = append(parents[edge.Role], edge.Parent)
	}
	closure := make(map[string]map[string]struct{}, len(parents))
	for role := range parents {
		seen := map[string]struct{}{role: {}}
		queue := append([]string(nil), parents[role]...)
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, parents[next]...)
		}
		closure[role] = seen
	}
	return closure
}
