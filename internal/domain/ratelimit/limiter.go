package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store persists fixed-window counters. Implementations: in-memory (default),
// SQLite (shared across processes). The limiter is the only writer; stores
// never mutate entries on their own beyond Sweep.
type Store interface {
	// Get returns the entry for key, or ok=false if absent.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Put creates or replaces an entry.
	Put(ctx context.Context, entry Entry) error

	// Delete removes an entry. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes every entry whose window expired at or before now.
	Sweep(ctx context.Context, now time.Time) error
}

// Limiter implements fixed-window rate limiting over a Store.
//
// This is a fixed-window counter, not a sliding window or token bucket:
// bursts at a window boundary can momentarily admit close to 2x MaxAttempts
// across the boundary. That is an accepted property of the algorithm, kept
// for simplicity and predictable reset semantics.
type Limiter struct {
	store Store

	// mu serializes check-and-increment. Get and Put are separate store
	// calls; two concurrent checks interleaving them would both read the
	// same count and admit one attempt more than the window allows.
	mu sync.Mutex

	// now is the clock; replaceable in tests for deterministic windows.
	now func() time.Time
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the limiter's clock. For tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check records an attempt for identifier under config and reports whether
// it may proceed. Attempts are consumed at check time: a later failure of
// the guarded operation does not refund the attempt. Once the window is
// exhausted further attempts are refused without being counted.
//
// Every check opportunistically sweeps all expired entries, so windows
// expire passively with no background timer required.
func (l *Limiter) Check(ctx context.Context, identifier string, config Config) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := config.Key(identifier)

	if err := l.store.Sweep(ctx, now); err != nil {
		return Result{}, err
	}

	entry, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	// First attempt, or the window boundary was crossed.
	if !ok || entry.Expired(now) {
		entry = Entry{
			Key:           key,
			Count:         1,
			WindowResetAt: now.Add(config.Window),
		}
		if err := l.store.Put(ctx, entry); err != nil {
			return Result{}, err
		}
		return Result{
			Allowed:   true,
			Remaining: config.MaxAttempts - 1,
			ResetAt:   entry.WindowResetAt,
		}, nil
	}

	if entry.Count >= config.MaxAttempts {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   entry.WindowResetAt,
		}, nil
	}

	entry.Count++
	if err := l.store.Put(ctx, entry); err != nil {
		return Result{}, err
	}

	return Result{
		Allowed:   true,
		Remaining: config.MaxAttempts - entry.Count,
		ResetAt:   entry.WindowResetAt,
	}, nil
}

// Reset clears the counter for identifier under config. Administrative
// override; also used by tests.
func (l *Limiter) Reset(ctx context.Context, identifier string, config Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(ctx, config.Key(identifier))
}
