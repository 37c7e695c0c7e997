// Package ratelimit provides fixed-window rate limiting for sensitive
// operations (login, signup, password reset, group creation, profile update).
package ratelimit

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Config defines the rate limiting parameters for one operation kind.
type Config struct {
	// Operation names the key-space. Distinct operations never share
	// counters, even for the same identifier.
	Operation string

	// MaxAttempts is the number of attempts allowed per window. Must be > 0.
	MaxAttempts int

	// Window is the fixed window duration. Must be > 0.
	Window time.Duration

	// KeyFunc optionally overrides the default key derivation.
	KeyFunc func(identifier string) string
}

// Key returns the store key for an identifier under this config.
// The default derivation digests the identifier so raw emails and user ids
// are not retained in store keys.
func (c Config) Key(identifier string) string {
	if c.KeyFunc != nil {
		return c.KeyFunc(identifier)
	}
	return FormatKey(c.Operation, identifier)
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the attempt may proceed.
	Allowed bool

	// Remaining is the number of attempts left in the current window.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1
// when the result is a refusal. Used for user-facing countdowns and the
// Retry-After header.
func (r Result) RetryAfter(now time.Time) int {
	if r.Allowed {
		return 0
	}
	secs := int(r.ResetAt.Sub(now).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Entry is one fixed-window counter. Owned exclusively by the limiter's
// store; created on first attempt, incremented within the window, replaced
// once the window boundary is crossed.
type Entry struct {
	Key           string
	Count         int
	WindowResetAt time.Time
}

// Expired reports whether the entry's window has passed.
func (e Entry) Expired(now time.Time) bool {
	return !e.WindowResetAt.After(now)
}

// FormatKey returns the structured store key for an operation/identifier
// pair: "ratelimit:{operation}:{xxhash64(identifier)}".
func FormatKey(operation, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%016x", operation, xxhash.Sum64String(identifier))
}

// Named per-operation policies. Each is independently tuned; callers must not
// reuse one operation's config for another.
var (
	// Login allows 5 attempts per 15 minutes per email.
	Login = Config{Operation: "login", MaxAttempts: 5, Window: 15 * time.Minute}

	// Signup allows 3 attempts per hour per email.
	Signup = Config{Operation: "signup", MaxAttempts: 3, Window: time.Hour}

	// PasswordReset allows 3 attempts per hour per email.
	PasswordReset = Config{Operation: "password_reset", MaxAttempts: 3, Window: time.Hour}

	// GroupCreation allows 10 attempts per hour per user.
	GroupCreation = Config{Operation: "group_creation", MaxAttempts: 10, Window: time.Hour}

	// ProfileUpdate allows 20 attempts per hour per user.
	ProfileUpdate = Config{Operation: "profile_update", MaxAttempts: 20, Window: time.Hour}

	// ProblemReport allows 5 reports per hour per email.
	ProblemReport = Config{Operation: "problem_report", MaxAttempts: 5, Window: time.Hour}
)

// Policies maps operation names to their configs, for admin tooling and
// config validation.
var Policies = map[string]Config{
	Login.Operation:         Login,
	Signup.Operation:        Signup,
	PasswordReset.Operation: PasswordReset,
	GroupCreation.Operation: GroupCreation,
	ProfileUpdate.Operation: ProfileUpdate,
	ProblemReport.Operation: ProblemReport,
}
