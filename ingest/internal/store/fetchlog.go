package store

import (
	"context"
	"fmt"
	"time"
)

// FetchLogEntry records the outcome of one source in one run.
type FetchLogEntry struct {
	Source        string
	Status        string
	RawCount      int
	KeptCount     int
	FilteredCount int
	DurationMs    int64
	Error         string
	FetchedAt     time.Time
}

// InsertFetchLog appends an entry to the fetch log.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	at := e.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_log (source, status, raw_count, kept_count, filtered_count, duration_ms, error, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Source, e.Status, e.RawCount, e.KeptCount, e.FilteredCount, e.DurationMs, e.Error, at.Unix())
	if err != nil {
		return fmt.Errorf("store: insert fetch log: %w", err)
	}
	return nil
}

// RecentFailures counts error-status log entries for source within the window.
func (s *Store) RecentFailures(ctx context.Context, source string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).Unix()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fetch_log
		WHERE source = ? AND status = 'error' AND fetched_at >= ?`,
		source, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: recent failures: %w", err)
	}
	return n, nil
}

// FetchLogPrune deletes log entries older than maxAge.
func (s *Store) FetchLogPrune(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_log WHERE fetched_at < ?`, cutoff); err != nil {
		return fmt.Errorf("store: fetch log prune: %w", err)
	}
	return nil
}
