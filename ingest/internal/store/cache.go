package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CachePut stores rendered content for a URL.
func (s *Store) CachePut(ctx context.Context, url string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_cache (url, body, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		url, body, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: cache put: %w", err)
	}
	return nil
}

// CacheGet returns cached content for url if it is younger than ttl.
func (s *Store) CacheGet(ctx context.Context, url string, ttl time.Duration) ([]byte, bool, error) {
	var body []byte
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT body, fetched_at FROM content_cache WHERE url = ?`, url).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: cache get: %w", err)
	}
	if time.Since(time.Unix(fetchedAt, 0)) > ttl {
		return nil, false, nil
	}
	return body, true, nil
}

// CachePrune deletes entries older than maxAge. Run opportunistically; a
// stale entry that survives pruning is still filtered by CacheGet's TTL.
func (s *Store) CachePrune(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM content_cache WHERE fetched_at < ?`, cutoff); err != nil {
		return fmt.Errorf("store: cache prune: %w", err)
	}
	return nil
}
