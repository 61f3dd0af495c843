package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RateCount returns the recorded count for domain on day (UTC YYYY-MM-DD).
func (s *Store) RateCount(domain, day string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT count FROM rate_limits WHERE domain = ? AND day = ?`, domain, day).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: rate count: %w", err)
	}
	return n, nil
}

// RateSet upserts the count for domain on day.
func (s *Store) RateSet(domain, day string, count int) error {
	_, err := s.db.Exec(`
		INSERT INTO rate_limits (domain, day, count) VALUES (?, ?, ?)
		ON CONFLICT(domain, day) DO UPDATE SET count = excluded.count`,
		domain, day, count)
	if err != nil {
		return fmt.Errorf("store: rate set: %w", err)
	}
	return nil
}

// RatePrune deletes counters older than the given day (exclusive).
func (s *Store) RatePrune(ctx context.Context, beforeDay string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE day < ?`, beforeDay); err != nil {
		return fmt.Errorf("store: rate prune: %w", err)
	}
	return nil
}
