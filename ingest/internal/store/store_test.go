package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCookies_RoundTrip(t *testing.T) {
	// WHAT: Cookie jars round-trip per domain and overwrite on save.
	// WHY: Return-visit challenge bypass depends on restored cookies.
	s := testStore(t)
	ctx := context.Background()

	if jar, err := s.LoadCookies(ctx, "x.com"); err != nil || jar != nil {
		t.Fatalf("empty load: jar=%v err=%v", jar, err)
	}
	if err := s.SaveCookies(ctx, "x.com", []byte(`[{"name":"cf_clearance"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveCookies(ctx, "x.com", []byte(`[{"name":"v2"}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	jar, err := s.LoadCookies(ctx, "x.com")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(jar) != `[{"name":"v2"}]` {
		t.Errorf("jar: got %s", jar)
	}
}

func TestCache_TTL(t *testing.T) {
	// WHAT: Cache hits honor the TTL; stale entries miss.
	// WHY: A 6h content cache is what keeps browser runs under quota.
	s := testStore(t)
	ctx := context.Background()

	if err := s.CachePut(ctx, "https://x.com/news", []byte("<html>rendered</html>")); err != nil {
		t.Fatalf("put: %v", err)
	}
	body, hit, err := s.CacheGet(ctx, "https://x.com/news", time.Hour)
	if err != nil || !hit {
		t.Fatalf("get: hit=%v err=%v", hit, err)
	}
	if string(body) != "<html>rendered</html>" {
		t.Errorf("body: got %s", body)
	}
	// A zero TTL makes everything stale.
	if _, hit, _ := s.CacheGet(ctx, "https://x.com/news", 0); hit {
		t.Error("expired entry must miss")
	}
	if _, hit, _ := s.CacheGet(ctx, "https://other.com/", time.Hour); hit {
		t.Error("unknown url must miss")
	}
}

func TestRate_RoundTrip(t *testing.T) {
	// WHAT: Rate counters upsert per (domain, day).
	// WHY: The limiter reads these on cold start so quotas survive restarts.
	s := testStore(t)

	if n, err := s.RateCount("x.com", "2026-03-01"); err != nil || n != 0 {
		t.Fatalf("cold count: n=%d err=%v", n, err)
	}
	if err := s.RateSet("x.com", "2026-03-01", 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.RateSet("x.com", "2026-03-01", 3); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n, _ := s.RateCount("x.com", "2026-03-01"); n != 3 {
		t.Errorf("count: got %d, want 3", n)
	}
	// Different day is a different counter.
	if n, _ := s.RateCount("x.com", "2026-03-02"); n != 0 {
		t.Errorf("next day: got %d, want 0", n)
	}
}

func TestFetchLog_InsertAndCount(t *testing.T) {
	// WHAT: Fetch log entries persist and error counting respects the window.
	// WHY: The log is the run history the status API reports from.
	s := testStore(t)
	ctx := context.Background()

	err := s.InsertFetchLog(ctx, &FetchLogEntry{
		Source: "Example Wire", Status: "error", Error: "http 500", DurationMs: 120,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = s.InsertFetchLog(ctx, &FetchLogEntry{
		Source: "Example Wire", Status: "ok", RawCount: 10, KeptCount: 7, FilteredCount: 3,
	})
	if err != nil {
		t.Fatalf("insert ok: %v", err)
	}

	n, err := s.RecentFailures(ctx, "Example Wire", time.Hour)
	if err != nil {
		t.Fatalf("recent failures: %v", err)
	}
	if n != 1 {
		t.Errorf("failures: got %d, want 1", n)
	}
}
