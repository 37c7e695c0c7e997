// Package csrf manages per-session CSRF tokens for form submissions.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the default token lifetime.
const DefaultTTL = time.Hour

// GuestKeyPrefix marks session keys synthesized for unauthenticated flows.
const GuestKeyPrefix = "guest:"

// ErrNoSessionKey is returned when a token operation is attempted with an
// empty session key.
var ErrNoSessionKey = errors.New("csrf: session key is empty")

// Entry binds a token to a session key until it expires.
type Entry struct {
	SessionKey string
	Token      string
	ExpiresAt  time.Time
}

// Expired reports whether the entry is past its expiry.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Store persists CSRF token entries, one per session key.
// Implementations: in-memory (default). Only the Manager mutates entries.
type Store interface {
	// Get returns the entry for sessionKey, or ok=false if absent.
	Get(ctx context.Context, sessionKey string) (Entry, bool, error)

	// Put creates or replaces the entry for its session key.
	Put(ctx context.Context, entry Entry) error

	// Delete removes the entry for sessionKey.
	Delete(ctx context.Context, sessionKey string) error

	// Sweep removes every entry expired at or before now.
	Sweep(ctx context.Context, now time.Time) error
}

// Manager issues and validates CSRF tokens.
//
// A token is accepted if and only if it exactly matches the most recently
// issued, unexpired token for the presenting session key. Tokens are
// single-session-scoped: there is no cross-session reuse.
type Manager struct {
	store Store
	ttl   time.Duration

	// now is the clock; replaceable in tests.
	now func() time.Time
}

// NewManager creates a Manager over the given store with the default TTL.
func NewManager(store Store) *Manager {
	return &Manager{store: store, ttl: DefaultTTL, now: time.Now}
}

// WithTTL overrides the token lifetime.
func (m *Manager) WithTTL(ttl time.Duration) *Manager {
	if ttl > 0 {
		m.ttl = ttl
	}
	return m
}

// WithClock overrides the manager's clock. For tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Generate issues a new token for sessionKey, replacing any prior token for
// that key (the old token is immediately invalid). Globally expired entries
// are swept on every generation.
func (m *Manager) Generate(ctx context.Context, sessionKey string) (string, error) {
	if sessionKey == "" {
		return "", ErrNoSessionKey
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	now := m.now()
	if err := m.store.Sweep(ctx, now); err != nil {
		return "", err
	}

	entry := Entry{
		SessionKey: sessionKey,
		Token:      token,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, entry); err != nil {
		return "", fmt.Errorf("csrf: failed to store token: %w", err)
	}

	return token, nil
}

// Validate reports whether token is the current, unexpired token for
// sessionKey. An expired entry is deleted on sight so later calls cannot
// re-validate against stale state. Comparison is exact and constant-time.
func (m *Manager) Validate(ctx context.Context, sessionKey, token string) (bool, error) {
	if sessionKey == "" || token == "" {
		return false, nil
	}

	entry, ok, err := m.store.Get(ctx, sessionKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if entry.Expired(m.now()) {
		_ = m.store.Delete(ctx, sessionKey)
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(entry.Token), []byte(token)) == 1, nil
}

// Remove explicitly invalidates the token for sessionKey (e.g. on sign-out).
func (m *Manager) Remove(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return ErrNoSessionKey
	}
	return m.store.Delete(ctx, sessionKey)
}

// GenerateGuestKey synthesizes a session key for flows where no
// authenticated session exists yet (login, signup). Guest tokens validate
// through the same exact-match path as authenticated ones, but a guest key
// is not tied to any server-side principal: possession of the guest cookie
// is the whole binding. That is weaker than authenticated validation and is
// an accepted limitation of pre-auth CSRF protection.
func GenerateGuestKey() string {
	return GuestKeyPrefix + uuid.NewString()
}

// IsGuestKey reports whether sessionKey was synthesized by GenerateGuestKey.
func IsGuestKey(sessionKey string) bool {
	return strings.HasPrefix(sessionKey, GuestKeyPrefix)
}

// newToken returns a cryptographically random opaque token,
// 32 bytes hex-encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf: failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
