// Package policy holds the static role/resource/action allow rules and the
// evaluator that decides whether a role may perform an action on a resource.
//
// Rules only ever grant. A request that no rule matches is denied.
package policy

import (
	"regexp"
	"sort"
)

// Rule allows Role to perform any action matching ActionPattern on any
// resource matching ResourcePattern.
type Rule struct {
	Role            string
	ResourcePattern string
	ActionPattern   string

	action *regexp.Regexp
}

// Edge declares that Role inherits every permission granted to Parent.
type Edge struct {
	Role   string
	Parent string
}

// Set is an immutable, fully validated collection of rules and edges.
type Set struct {
	source string
	rules  []Rule
	edges  []Edge
}

// Source names the configuration the set was parsed from.
func (s *Set) Source() string {
	if s == nil {
		return ""
	}
	return s.source
}

// Rules returns a copy of all rules.
func (s *Set) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Edges returns a copy of all inheritance edges.
func (s *Set) Edges() []Edge {
	if s == nil {
		return nil
	}
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Roles lists every role named by a rule or an edge, sorted.
func (s *Set) Roles() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, r := range s.rules {
		seen[r.Role] = struct{}{}
	}
	for _, e := range s.edges {
		seen[e.Role] = struct{}{}
		seen[e.Parent] = struct{}{}
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// HasRole reports whether role is known to the set.
func (s *Set) HasRole(role string) bool {
	for _, r := range s.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
