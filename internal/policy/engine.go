// Package policy evaluates the OPA policy that gates event ingestion.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is the document the ingest policy is evaluated against.
type Input struct {
	TraceID     string `json:"trace_id"`
	TraceStatus string `json:"trace_status"`
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	KnownType   bool   `json:"known_type"`
	AgentID     string `json:"agent_id,omitempty"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("decision = data.ingest_policy.decision; reason = data.ingest_policy.reason"),
		rego.Module("ingest_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks one incoming event.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 {
		// The policy defines a default decision; an undefined result means it didn't load.
		return DecisionAllow, "default", nil
	}

	decision, _ := results[0].Bindings["decision"].(string)
	reason, _ := results[0].Bindings["reason"].(string)
	if decision == "" {
		return DecisionAllow, "unexpected return type", nil
	}
	return decision, reason, nil
}

// DefaultPolicy is the default ingest policy.
const DefaultPolicy = `
package ingest_policy

default decision = "allow"
default reason = ""

reason = "trace is not running" {
	input.trace_status != "running"
} else = "event id is required" {
	input.event_id == ""
} else = "unknown event type" {
	not input.known_type
}

decision = "block" {
	reason != ""
}
`
