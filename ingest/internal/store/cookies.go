package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveCookies stores the serialized cookie jar for a domain, replacing any
// previous jar. All cookies are kept, not just anti-bot ones: return-visit
// challenges often check unrelated first-party cookies.
func (s *Store) SaveCookies(ctx context.Context, domain string, jar []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cookies (domain, jar, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET jar = excluded.jar, saved_at = excluded.saved_at`,
		domain, string(jar), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: save cookies %s: %w", domain, err)
	}
	return nil
}

// LoadCookies returns the saved jar for a domain, or nil when none exists.
func (s *Store) LoadCookies(ctx context.Context, domain string) ([]byte, error) {
	var jar string
	err := s.db.QueryRowContext(ctx,
		`SELECT jar FROM cookies WHERE domain = ?`, domain).Scan(&jar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load cookies %s: %w", domain, err)
	}
	return []byte(jar), nil
}
