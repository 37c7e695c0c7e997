package cel

import (
	"context"
	"fmt"
	"path"

	"github.com/google/cel-go/cel"

	"github.com/zenostudy/zeno/internal/domain/formpolicy"
)

// Engine evaluates submission rules in order; the first rule whose operation
// pattern and condition both match decides the outcome. No match means allow.
type Engine struct {
	evaluator *Evaluator
	rules     []compiledRule
}

type compiledRule struct {
	rule    formpolicy.Rule
	program cel.Program
}

// Compile-time check that Engine implements the domain interface.
var _ formpolicy.Engine = (*Engine)(nil)

// NewEngine compiles the rule set. A rule that fails validation makes the
// whole construction fail; partial rule sets must not ship.
func NewEngine(evaluator *Evaluator, rules []formpolicy.Rule) (*Engine, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if !rule.Action.Valid() {
			return nil, fmt.Errorf("rule %q: action %q is not allow or deny", rule.Name, rule.Action)
		}
		if err := evaluator.ValidateExpression(rule.Condition); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		prg, err := evaluator.Compile(rule.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, program: prg})
	}
	return &Engine{evaluator: evaluator, rules: compiled}, nil
}

// Evaluate applies the rules to one submission, first match wins.
func (e *Engine) Evaluate(ctx context.Context, evalCtx formpolicy.EvaluationContext) (formpolicy.Decision, error) {
	for _, cr := range e.rules {
		if !operationMatches(cr.rule.Operation, evalCtx.Operation) {
			continue
		}

		matched, err := e.evaluator.Evaluate(ctx, cr.program, evalCtx)
		if err != nil {
			return formpolicy.Decision{}, fmt.Errorf("rule %q: %w", cr.rule.Name, err)
		}
		if !matched {
			continue
		}

		allowed := cr.rule.Action == formpolicy.ActionAllow
		reason := fmt.Sprintf("matched rule %q", cr.rule.Name)
		return formpolicy.Decision{Allowed: allowed, RuleName: cr.rule.Name, Reason: reason}, nil
	}

	return formpolicy.Decision{Allowed: true, Reason: "no rule matched"}, nil
}

// operationMatches applies the rule's glob pattern to the operation name.
// An empty pattern matches everything; a malformed pattern matches nothing.
func operationMatches(pattern, operation string) bool {
	if pattern == "" {
		return true
	}
	matched, err := path.Match(pattern, operation)
	return err == nil && matched
}
