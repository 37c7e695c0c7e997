// Package formpolicy contains domain types for submission policy evaluation.
// Deployments express rules like "deny disposable emails on signup" in
// configuration instead of code.
package formpolicy

import "context"

// Action is the result of a matching policy rule.
type Action string

const (
	// ActionAllow permits the submission to proceed.
	ActionAllow Action = "allow"
	// ActionDeny blocks the submission.
	ActionDeny Action = "deny"
)

// Valid reports whether the action is a recognized value.
func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

// Rule is one admin-configured submission rule.
type Rule struct {
	// Name is a human-readable identifier, reported back on denials.
	Name string `mapstructure:"name" yaml:"name"`

	// Operation is a glob pattern matched against the submission operation
	// (login, signup, ...). Empty matches every operation.
	Operation string `mapstructure:"operation" yaml:"operation"`

	// Condition is a CEL expression over the submission context. The rule
	// matches when it evaluates to true.
	Condition string `mapstructure:"condition" yaml:"condition"`

	// Action is applied when the rule matches.
	Action Action `mapstructure:"action" yaml:"action"`
}

// EvaluationContext carries the submission facts rules can reference.
type EvaluationContext struct {
	// Operation is the submission operation name.
	Operation string

	// Email is the sanitized email on the submission, if any.
	Email string

	// EmailQuality is the oracle quality score 0..100, or -1 when the
	// oracle produced no verdict.
	EmailQuality int

	// EmailDisposable reports whether the oracle flagged the address as
	// disposable.
	EmailDisposable bool

	// EmailDeliverable reports whether the oracle confirmed deliverability.
	EmailDeliverable bool

	// Fields is the sanitized form field map.
	Fields map[string]string
}

// Decision is the outcome of evaluating a submission against the rule set.
type Decision struct {
	// Allowed is true when the submission may proceed.
	Allowed bool

	// RuleName names the rule that produced the decision, empty for the
	// default allow.
	RuleName string

	// Reason explains the decision.
	Reason string
}

// Engine evaluates submissions against the configured rules. Rules are
// ordered; the first rule whose operation and condition both match decides,
// and an empty rule set allows everything.
type Engine interface {
	Evaluate(ctx context.Context, evalCtx EvaluationContext) (Decision, error)
}
