// Package policy decides which executor-originated requests the runner
// gateway may forward upstream.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.gateway_policy.decision"),
		rego.Module("gateway_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input describes one executor request for policy evaluation.
type Input struct {
	Method          string   `json:"method"`
	Path            string   `json:"path"`
	SessionID       string   `json:"session_id"`
	AllowedSessions []string `json:"allowed_sessions"`
}

// Evaluate returns the policy decision ("allow" or "deny") for a request.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; an empty result means it was
		// dropped, so fail closed.
		return "deny", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "deny", nil
}

// DefaultPolicy isolates executors to the sessions their runner bound for
// them: an executor can only act within the session it was invoked for.
const DefaultPolicy = `
package gateway_policy

default decision = "deny"

# Session-scoped calls are allowed only for sessions this runner owns.
decision = "allow" {
	input.session_id != ""
	input.session_id == input.allowed_sessions[_]
}

# Read-only coordinator queries pass through.
decision = "allow" {
	input.method == "GET"
	startswith(input.path, "/v1/")
}
`
