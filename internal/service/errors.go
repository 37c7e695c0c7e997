package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmailTaken is returned when a signup address is already registered.
var ErrEmailTaken = errors.New("an account with this email already exists")

// ValidationError reports fields that failed sanitization or basic checks.
// The submission never reached the backend.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid submission"
	}
	return strings.Join(e.Problems, "; ")
}

// PolicyDeniedError reports a submission blocked by a configured rule.
type PolicyDeniedError struct {
	RuleName string
	Reason   string
}

func (e *PolicyDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("submission blocked: %s", e.Reason)
	}
	return "submission blocked by policy"
}
