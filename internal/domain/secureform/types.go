// Package secureform orchestrates the submission gates every sensitive form
// goes through: token readiness, CSRF validation, rate limiting, and only
// then the caller's business callback.
package secureform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FormData is a sanitized field map handed to the submission callback.
type FormData map[string]string

// Get returns the value for name, or "" when absent.
func (f FormData) Get(name string) string {
	return f[name]
}

// Callback is the caller-supplied business logic invoked once all gates pass.
// A non-nil error marks the submission failed; its message is surfaced to the
// user verbatim.
type Callback func(ctx context.Context, form FormData, csrfToken string) error

// TokenSource yields the CSRF token for the current submission. Token
// generation may still be in flight when a submit arrives, so readiness is
// reported separately; the protocol waits a bounded time for ready=true.
type TokenSource interface {
	Token() (token string, ready bool)
}

// StaticToken is a TokenSource for tokens already in hand, typically the
// value read from a request header. An empty StaticToken can never become
// ready, so the protocol skips the bounded wait for it.
type StaticToken string

func (t StaticToken) Token() (string, bool) {
	return string(t), t != ""
}

// ErrTokenUnavailable is returned when no CSRF token became ready within the
// bounded wait. Terminal for the attempt; the client should refresh.
var ErrTokenUnavailable = errors.New("security token unavailable, please refresh")

// ErrTokenInvalid is returned when the presented token fails CSRF validation.
var ErrTokenInvalid = errors.New("security token invalid, please refresh and retry")

// ErrSubmissionInFlight is returned when Submit is called on a Submission
// that is already processing an attempt.
var ErrSubmissionInFlight = errors.New("submission already in progress")

// RateLimitedError reports a refusal by the rate limit gate. The business
// callback was not invoked.
type RateLimitedError struct {
	// Seconds until the window resets, always >= 1.
	Seconds int

	// ResetAt is the absolute window reset time.
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, please wait %d seconds before trying again", e.Seconds)
}

// Result reports a completed, successful submission.
type Result struct {
	// NextToken is the freshly rotated CSRF token. The token used for this
	// submission is no longer valid.
	NextToken string

	// Remaining is the number of attempts left in the current window.
	Remaining int

	// ResetAt is when the current rate limit window expires.
	ResetAt time.Time
}
