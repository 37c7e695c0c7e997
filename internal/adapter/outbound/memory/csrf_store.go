package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zenostudy/zeno/internal/domain/csrf"
)

// CSRFStore implements csrf.Store with an in-memory map keyed by session key.
// Thread-safe.
type CSRFStore struct {
	entries         map[string]csrf.Entry
	mu              sync.RWMutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	cleanupInterval time.Duration
	once            sync.Once
}

// Compile-time check that CSRFStore implements csrf.Store.
var _ csrf.Store = (*CSRFStore)(nil)

// NewCSRFStore creates an in-memory CSRF store with the default cleanup
// interval.
func NewCSRFStore() *CSRFStore {
	return NewCSRFStoreWithConfig(DefaultCleanupInterval)
}

// NewCSRFStoreWithConfig creates an in-memory CSRF store with a custom
// cleanup interval.
func NewCSRFStoreWithConfig(cleanupInterval time.Duration) *CSRFStore {
	return &CSRFStore{
		entries:         make(map[string]csrf.Entry),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// StartCleanup starts the background cleanup goroutine.
// Call Stop() to stop it gracefully.
func (s *CSRFStore) StartCleanup(ctx context.Context) {
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

func (s *CSRFStore) cleanup() {
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
		slog.Debug("cleaned expired csrf tokens", "count", cleaned)
	}
}

// Stop stops the background cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *CSRFStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Get retrieves the entry for sessionKey.
func (s *CSRFStore) Get(ctx context.Context, sessionKey string) (csrf.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionKey]
	return entry, ok, nil
}

// Put creates or replaces the entry for its session key.
func (s *CSRFStore) Put(ctx context.Context, entry csrf.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.SessionKey] = entry
	return nil
}

// Delete removes the entry for sessionKey.
func (s *CSRFStore) Delete(ctx context.Context, sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionKey)
	return nil
}

// Sweep removes every entry expired at or before now.
func (s *CSRFStore) Sweep(ctx context.Context, now time.Time) error {
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
func (s *CSRFStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
