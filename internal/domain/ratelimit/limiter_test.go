package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mapStore is a minimal in-test Store.
type mapStore struct {
	entries map[string]Entry
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]Entry)}
}

func (s *mapStore) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *mapStore) Put(_ context.Context, entry Entry) error {
	s.entries[entry.Key] = entry
	return nil
}

func (s *mapStore) Delete(_ context.Context, key string) error {
	delete(s.entries, key)
	return nil
}

func (s *mapStore) Sweep(_ context.Context, now time.Time) error {
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
		}
	}
	return nil
}

// fakeClock is a settable clock for deterministic windows.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter() (*Limiter, *mapStore, *fakeClock) {
	store := newMapStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(store).WithClock(clock.Now)
	return limiter, store, clock
}

func TestLimiter_AllowsUpToMaxAttempts(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newTestLimiter()
	ctx := context.Background()
	config := Config{Operation: "login", MaxAttempts: 5, Window: 15 * time.Minute}

	for i := 1; i <= 5; i++ {
		result, err := limiter.Check(ctx, "user@example.com", config)
		if err != nil {
			t.Fatalf("Check() error on attempt %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("attempt %d refused, want allowed", i)
		}
		if want := 5 - i; result.Remaining != want {
			t.Errorf("attempt %d: Remaining = %d, want %d", i, result.Remaining, want)
		}
	}

	// The sixth attempt is refused with remaining=0 and is not counted.
	result, err := limiter.Check(ctx, "user@example.com", config)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.Allowed {
		t.Error("sixth attempt allowed, want refused")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
}

func TestLimiter_RefusedAttemptsAreNotCounted(t *testing.T) {
	t.Parallel()

	limiter, store, _ := newTestLimiter()
	ctx := context.Background()
	config := Config{Operation: "signup", MaxAttempts: 3, Window: time.Hour}

	for i := 0; i < 10; i++ {
		if _, err := limiter.Check(ctx, "a@b.com", config); err != nil {
			t.Fatalf("Check() error: %v", err)
		}
	}

	entry, ok := store.entries[config.Key("a@b.com")]
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.Count != 3 {
		t.Errorf("Count = %d, want 3 (refusals must not increment)", entry.Count)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	t.Parallel()

	limiter, _, clock := newTestLimiter()
	ctx := context.Background()
	config := Config{Operation: "login", MaxAttempts: 2, Window: 15 * time.Minute}

	start := clock.Now()
	for i := 0; i < 2; i++ {
		if _, err := limiter.Check(ctx, "k", config); err != nil {
			t.Fatalf("Check() error: %v", err)
		}
	}

	result, _ := limiter.Check(ctx, "k", config)
	if result.Allowed {
		t.Fatal("expected refusal inside window")
	}
	if want := start.Add(15 * time.Minute); !result.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", result.ResetAt, want)
	}

	// One tick before the boundary the window must not reset early.
	clock.Advance(15*time.Minute - time.Second)
	result, _ = limiter.Check(ctx, "k", config)
	if result.Allowed {
		t.Error("window reset early")
	}

	// At the boundary the count resets to 1.
	clock.Advance(time.Second)
	result, err := limiter.Check(ctx, "k", config)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowance after window reset")
	}
	if result.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1 after reset", result.Remaining)
	}
}

func TestLimiter_SweepRemovesExpiredEntriesGlobally(t *testing.T) {
	t.Parallel()

	limiter, store, clock := newTestLimiter()
	ctx := context.Background()
	short := Config{Operation: "login", MaxAttempts: 5, Window: time.Minute}
	long := Config{Operation: "signup", MaxAttempts: 3, Window: time.Hour}

	_, _ = limiter.Check(ctx, "a", short)
	_, _ = limiter.Check(ctx, "b", short)
	_, _ = limiter.Check(ctx, "c", long)

	clock.Advance(2 * time.Minute)
	// Any check sweeps all expired entries, not only the checked key.
	_, _ = limiter.Check(ctx, "c", long)

	if _, ok := store.entries[short.Key("a")]; ok {
		t.Error("expired entry for a survived the sweep")
	}
	if _, ok := store.entries[short.Key("b")]; ok {
		t.Error("expired entry for b survived the sweep")
	}
	if _, ok := store.entries[long.Key("c")]; !ok {
		t.Error("live entry for c was swept")
	}
}

func TestLimiter_OperationsDoNotShareKeySpace(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newTestLimiter()
	ctx := context.Background()

	// Exhaust the signup window for this email.
	for i := 0; i < 3; i++ {
		if _, err := limiter.Check(ctx, "x@y.com", Signup); err != nil {
			t.Fatalf("Check() error: %v", err)
		}
	}
	result, _ := limiter.Check(ctx, "x@y.com", Signup)
	if result.Allowed {
		t.Fatal("signup should be exhausted")
	}

	// The same identifier is untouched under the login operation.
	result, _ = limiter.Check(ctx, "x@y.com", Login)
	if !result.Allowed {
		t.Error("login counter polluted by signup attempts")
	}
	if result.Remaining != Login.MaxAttempts-1 {
		t.Errorf("Remaining = %d, want %d", result.Remaining, Login.MaxAttempts-1)
	}
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newTestLimiter()
	ctx := context.Background()
	config := Config{Operation: "login", MaxAttempts: 1, Window: time.Hour}

	_, _ = limiter.Check(ctx, "victim@example.com", config)
	result, _ := limiter.Check(ctx, "victim@example.com", config)
	if result.Allowed {
		t.Fatal("expected refusal")
	}

	if err := limiter.Reset(ctx, "victim@example.com", config); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	result, _ = limiter.Check(ctx, "victim@example.com", config)
	if !result.Allowed {
		t.Error("expected allowance after administrative reset")
	}
}

func TestResult_RetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	refused := Result{Allowed: false, ResetAt: now.Add(90 * time.Second)}
	if got := refused.RetryAfter(now); got != 91 {
		t.Errorf("RetryAfter = %d, want 91", got)
	}

	allowed := Result{Allowed: true, ResetAt: now.Add(time.Minute)}
	if got := allowed.RetryAfter(now); got != 0 {
		t.Errorf("RetryAfter for allowed = %d, want 0", got)
	}

	stale := Result{Allowed: false, ResetAt: now.Add(-time.Second)}
	if got := stale.RetryAfter(now); got != 1 {
		t.Errorf("RetryAfter for stale = %d, want at least 1", got)
	}
}

func TestFormatKey_DigestsIdentifier(t *testing.T) {
	t.Parallel()

	key := FormatKey("login", "user@example.com")
	if key == "ratelimit:login:user@example.com" {
		t.Error("identifier stored raw, want digest")
	}
	if key != FormatKey("login", "user@example.com") {
		t.Error("key derivation not deterministic")
	}
	if key == FormatKey("signup", "user@example.com") {
		t.Error("operations share a key")
	}
}

func TestLimiter_ConcurrentChecksRespectBudget(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newTestLimiter()
	config := Config{Operation: "login", MaxAttempts: 5, Window: 15 * time.Minute}
	ctx := context.Background()

	// Simultaneous checks for one identifier must never admit more than the
	// window budget, whatever the goroutine interleaving.
	for round := 0; round < 200; round++ {
		identifier := fmt.Sprintf("burst-%d@example.com", round)

		var wg sync.WaitGroup
		var allowed atomic.Int64
		start := make(chan struct{})
		for g := 0; g < 32; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				result, err := limiter.Check(ctx, identifier, config)
				if err != nil {
					t.Errorf("Check() error: %v", err)
					return
				}
				if result.Allowed {
					allowed.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := allowed.Load(); got != int64(config.MaxAttempts) {
			t.Fatalf("round %d: allowed %d attempts, want exactly %d", round, got, config.MaxAttempts)
		}
	}
}
