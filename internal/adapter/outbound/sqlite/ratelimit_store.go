// Package sqlite provides a sqlite-backed rate limit store so several server
// processes on one host can share counters. Uses the pure-Go driver; no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zenostudy/zeno/internal/domain/ratelimit"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_limit_entries (
	key             TEXT PRIMARY KEY,
	count           INTEGER NOT NULL,
	window_reset_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_reset ON rate_limit_entries (window_reset_at);
`

// RateLimitStore implements ratelimit.Store over a sqlite database file.
// Counter timestamps are stored as unix milliseconds.
type RateLimitStore struct {
	db *sql.DB
}

// Compile-time check that RateLimitStore implements ratelimit.Store.
var _ ratelimit.Store = (*RateLimitStore)(nil)

// NewRateLimitStore opens (creating if needed) the database at path and
// ensures the schema exists. Pass ":memory:" for an ephemeral store.
func NewRateLimitStore(path string) (*RateLimitStore, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is empty")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %s: %w", path, err)
	}

	// One writer at a time keeps SQLITE_BUSY retries out of the hot path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &RateLimitStore{db: db}, nil
}

// Close closes the underlying database.
func (s *RateLimitStore) Close() error {
	return s.db.Close()
}

// Get retrieves the entry for key.
func (s *RateLimitStore) Get(ctx context.Context, key string) (ratelimit.Entry, bool, error) {
	var (
		count   int
		resetMs int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT count, window_reset_at FROM rate_limit_entries WHERE key = ?`, key)
	if err := row.Scan(&count, &resetMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ratelimit.Entry{}, false, nil
		}
		return ratelimit.Entry{}, false, fmt.Errorf("sqlite: get %s: %w", key, err)
	}

	return ratelimit.Entry{
		Key:           key,
		Count:         count,
		WindowResetAt: time.UnixMilli(resetMs),
	}, true, nil
}

// Put creates or replaces an entry.
func (s *RateLimitStore) Put(ctx context.Context, entry ratelimit.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_entries (key, count, window_reset_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET count = excluded.count, window_reset_at = excluded.window_reset_at`,
		entry.Key, entry.Count, entry.WindowResetAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put %s: %w", entry.Key, err)
	}
	return nil
}

// Delete removes the entry for key. Removing an absent key is not an error.
func (s *RateLimitStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", key, err)
	}
	return nil
}

// Sweep removes every entry whose window expired at or before now.
func (s *RateLimitStore) Sweep(ctx context.Context, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_entries WHERE window_reset_at <= ?`, now.UnixMilli()); err != nil {
		return fmt.Errorf("sqlite: sweep: %w", err)
	}
	return nil
}

// Size returns the number of stored entries. For tests and metrics.
func (s *RateLimitStore) Size(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limit_entries`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: size: %w", err)
	}
	return n, nil
}
