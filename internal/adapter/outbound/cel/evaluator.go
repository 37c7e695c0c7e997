// Package cel provides a CEL-based evaluator for submission policy rules.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/zenostudy/zeno/internal/domain/formpolicy"
)

// maxExpressionLength bounds rule conditions; policy config is
// admin-supplied but still untrusted input to the parser.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// NewPolicyEnvironment creates a CEL environment exposing the submission
// context: operation, email, email_quality, email_disposable,
// email_deliverable, and the sanitized fields map.
func NewPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("operation", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("email_quality", cel.IntType),
		cel.Variable("email_disposable", cel.BoolType),
		cel.Variable("email_deliverable", cel.BoolType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// Evaluator compiles and evaluates CEL conditions for submission rules.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates a CEL evaluator with the submission policy environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewPolicyEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a condition, returning a compiled program
// with the cost budget and interrupt checks applied.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum
// nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a condition is syntactically valid and
// within the safety limits. Used by config validation so a bad rule fails
// at boot, not at submission time.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	if expr == "" {
		return errors.New("expression is empty")
	}

	if err := validateNesting(expr); err != nil {
		return err
	}

	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}

	return nil
}

// Evaluate runs a compiled condition against the submission context.
// ContextEval with a timeout prevents indefinite evaluation hangs.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, evalCtx formpolicy.EvaluationContext) (bool, error) {
	activation := buildActivation(evalCtx)

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// buildActivation maps the evaluation context onto the CEL variables.
func buildActivation(evalCtx formpolicy.EvaluationContext) map[string]any {
	fields := evalCtx.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	return map[string]any{
		"operation":         evalCtx.Operation,
		"email":             evalCtx.Email,
		"email_quality":     evalCtx.EmailQuality,
		"email_disposable":  evalCtx.EmailDisposable,
		"email_deliverable": evalCtx.EmailDeliverable,
		"fields":            fields,
	}
}
