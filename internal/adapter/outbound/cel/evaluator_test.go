package cel

import (
	"context"
	"strings"
	"testing"

	"github.com/zenostudy/zeno/internal/domain/formpolicy"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	evaluator, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return evaluator
}

func TestEvaluator_ValidateExpression(t *testing.T) {
	t.Parallel()

	evaluator := newTestEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"simple comparison", `email_quality < 30`, false},
		{"operation check", `operation == "signup" && email_disposable`, false},
		{"string function", `email.endsWith("@example.com")`, false},
		{"fields access", `fields["urgency"] == "high"`, false},
		{"empty expression", ``, true},
		{"syntax error", `operation ==`, true},
		{"unknown variable", `tool_name == "x"`, true},
		{"not a boolean", `email_quality + 1`, false},
		{"too long", `email == "` + strings.Repeat("a", 1100) + `"`, true},
		{"nesting too deep", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := evaluator.ValidateExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	t.Parallel()

	evaluator := newTestEvaluator(t)
	evalCtx := formpolicy.EvaluationContext{
		Operation:        "signup",
		Email:            "student@mailinator.com",
		EmailQuality:     12,
		EmailDisposable:  true,
		EmailDeliverable: false,
		Fields:           map[string]string{"name": "Ada", "year_level": "2nd year"},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"disposable on signup", `operation == "signup" && email_disposable`, true},
		{"quality threshold", `email_quality < 30`, true},
		{"quality threshold not met", `email_quality >= 30`, false},
		{"deliverable", `email_deliverable`, false},
		{"field lookup", `fields["year_level"].contains("2nd")`, true},
		{"missing field guarded", `"urgency" in fields && fields["urgency"] == "high"`, false},
		{"email suffix", `email.endsWith("@mailinator.com")`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prg, err := evaluator.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) error = %v", tt.expr, err)
			}
			got, err := evaluator.Evaluate(context.Background(), prg, evalCtx)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluator_NonBooleanResult(t *testing.T) {
	t.Parallel()

	evaluator := newTestEvaluator(t)
	prg, err := evaluator.Compile(`email_quality + 1`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if _, err := evaluator.Evaluate(context.Background(), prg, formpolicy.EvaluationContext{}); err == nil {
		t.Error("Evaluate() want error for non-boolean result")
	}
}

func TestEvaluator_NilFieldsMap(t *testing.T) {
	t.Parallel()

	evaluator := newTestEvaluator(t)
	prg, err := evaluator.Compile(`size(fields) == 0`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	got, err := evaluator.Evaluate(context.Background(), prg, formpolicy.EvaluationContext{Operation: "login"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got {
		t.Error("nil Fields should evaluate as an empty map")
	}
}
