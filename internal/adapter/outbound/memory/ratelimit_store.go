// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zenostudy/zeno/internal/domain/ratelimit"
)

// Default cleanup interval for expired entries.
const DefaultCleanupInterval = 1 * time.Minute

// RateLimitStore implements ratelimit.Store with an in-memory map.
// Thread-safe. State is process-local: in a multi-instance deployment each
// instance counts independently; use the sqlite store to share counters.
//
// The limiter already sweeps opportunistically on every check; the optional
// background cleanup only keeps the map small during idle periods.
type RateLimitStore struct {
	entries         map[string]ratelimit.Entry
	mu              sync.RWMutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	cleanupInterval time.Duration
	once            sync.Once // Prevent double-close panic on Stop()
}

// Compile-time check that RateLimitStore implements ratelimit.Store.
var _ ratelimit.Store = (*RateLimitStore)(nil)

// NewRateLimitStore creates an in-memory rate limit store with the default
// cleanup interval.
func NewRateLimitStore() *RateLimitStore {
	return NewRateLimitStoreWithConfig(DefaultCleanupInterval)
}

// NewRateLimitStoreWithConfig creates an in-memory rate limit store with a
// custom cleanup interval.
func NewRateLimitStoreWithConfig(cleanupInterval time.Duration) *RateLimitStore {
	return &RateLimitStore{
		entries:         make(map[string]ratelimit.Entry),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// StartCleanup starts the background cleanup goroutine.
// Call Stop() to stop it gracefully.
func (s *RateLimitStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *RateLimitStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("cleaned expired rate limit entries", "count", cleaned)
	}
}

// Stop stops the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *RateLimitStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Get retrieves the entry for key.
func (s *RateLimitStore) Get(ctx context.Context, key string) (ratelimit.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Put creates or replaces an entry.
func (s *RateLimitStore) Put(ctx context.Context, entry ratelimit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
	return nil
}

// Delete removes the entry for key.
func (s *RateLimitStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep removes every entry whose window expired at or before now.
func (s *RateLimitStore) Sweep(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Size returns the number of stored entries. For tests and metrics.
func (s *RateLimitStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
