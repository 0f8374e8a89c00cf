package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/worksite-pm/worksite/internal/policy"
)

// Exit codes shared by the policy commands.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitDenied = 10
)

// PolicyValidateOptions defines the flags of the policy validate command.
type PolicyValidateOptions struct {
	Path       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// PolicySummary describes the JSON response of policy validate.
type PolicySummary struct {
	OK     bool            `json:"ok"`
	Source string          `json:"source"`
	Roles  []string        `json:"roles"`
	Rules  []policyRuleDTO `json:"rules"`
	Edges  []policyEdgeDTO `json:"inherits"`
	Error  string          `json:"error,omitempty"`
	Line   int             `json:"line,omitempty"`
}

type policyRuleDTO struct {
	Role     string `json:"role"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type policyEdgeDTO struct {
	Role   string `json:"role"`
	Parent string `json:"parent"`
}

// ValidateCommand loads a policy file (or the embedded default when Path is
// empty) and reports its rules.
func ValidateCommand(opts PolicyValidateOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	set, err := policy.Load(strings.TrimSpace(opts.Path))
	if err != nil {
		if opts.JSONOutput {
			summary := PolicySummary{Source: opts.Path, Error: err.Error()}
			var cfgErr *policy.ConfigError
			if errors.As(err, &cfgErr) {
				summary.Line = cfgErr.Line
			}
			_ = json.NewEncoder(opts.Stdout).Encode(summary)
		} else {
			_, _ = fmt.Fprintf(opts.Stderr, "policy validate: %v\n", err)
		}
		return ExitError
	}
	if _, err := policy.NewEvaluator(set); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "policy validate: %v\n", err)
		return ExitError
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(buildSummary(set)); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "policy validate: encode json: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
	renderPolicyHuman(opts.Stdout, set)
	return ExitOK
}

func buildSummary(set *policy.Set) PolicySummary {
	summary := PolicySummary{OK: true, Source: set.Source(), Roles: set.Roles()}
	for _, r := range set.Rules() {
		summary.Rules = append(summary.Rules, policyRuleDTO{Role: r.Role, Resource: r.ResourcePattern, Action: r.ActionPattern})
	}
	for _, e := range set.Edges() {
		summary.Edges = append(summary.Edges, policyEdgeDTO{Role: e.Role, Parent: e.Parent})
	}
	return summary
}

func renderPolicyHuman(out io.Writer, set *policy.Set) {
	_, _ = fmt.Fprintf(out, "Policy %s: %d rule(s), roles %s\n", set.Source(), set.Len(), strings.Join(set.Roles(), ", "))
	for _, r := range set.Rules() {
		_, _ = fmt.Fprintf(out, " - %s may %s on %s\n", r.Role, r.ActionPattern, r.ResourcePattern)
	}
	for _, e := range set.Edges() {
		_, _ = fmt.Fprintf(out, " - %s inherits %s\n", e.Role, e.Parent)
	}
}

// PolicyCheckOptions defines the flags of the policy check command.
type PolicyCheckOptions struct {
	Path     string
	Role     string
	Resource string
	Action   string
	Stdout   io.Writer
	Stderr   io.Writer
}

// CheckCommand evaluates a single role/resource/action triple offline.
// It exits ExitOK on allow and ExitDenied on deny.
func CheckCommand(opts PolicyCheckOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if opts.Role == "" || opts.Resource == "" || opts.Action == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "policy check: role, resource and action are required")
		return ExitError
	}
	set, err := policy.Load(strings.TrimSpace(opts.Path))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "policy check: %v\n", err)
		return ExitError
	}
	evaluator, err := policy.NewEvaluator(set)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "policy check: %v\n", err)
		return ExitError
	}
	if evaluator.Evaluate(opts.Role, opts.Resource, opts.Action) {
		_, _ = fmt.Fprintf(opts.Stdout, "allow: %s may %s %s\n", opts.Role, opts.Action, opts.Resource)
		return ExitOK
	}
	_, _ = fmt.Fprintf(opts.Stdout, "deny: %s may not %s %s\n", opts.Role, opts.Action, opts.Resource)
	return ExitDenied
}

func defaultWriters(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
