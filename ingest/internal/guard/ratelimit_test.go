package guard

import (
	"testing"
	"time"
)

func TestRateLimiter_CapEnforced(t *testing.T) {
	// WHAT: After dailyCap recorded calls, Allow returns false.
	// WHY: Browser runs are expensive; the quota is the hard ceiling.
	r := NewRateLimiter(2)
	if !r.Allow("x.com") {
		t.Fatal("fresh domain must be allowed")
	}
	r.Record("x.com")
	r.Record("x.com")
	if r.Allow("x.com") {
		t.Error("cap reached: Allow must be false")
	}
	if r.Remaining("x.com") != 0 {
		t.Errorf("remaining: got %d, want 0", r.Remaining("x.com"))
	}
	// Other domains are unaffected.
	if !r.Allow("y.com") {
		t.Error("unrelated domain must be allowed")
	}
}

func TestRateLimiter_DayRollover(t *testing.T) {
	// WHAT: On the next UTC date the quota is fresh with no explicit reset.
	// WHY: The date lives in the counter key; rollover is implicit.
	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	clock := day1
	r := NewRateLimiter(1, WithRateClock(func() time.Time { return clock }))

	r.Record("x.com")
	if r.Allow("x.com") {
		t.Fatal("cap reached on day one")
	}
	clock = day1.Add(2 * time.Minute) // crosses midnight UTC
	if !r.Allow("x.com") {
		t.Error("new UTC date must reset the quota")
	}
}

type memRateStore struct {
	m map[string]int
}

func (s *memRateStore) RateCount(domain, day string) (int, error) {
	return s.m[domain+"|"+day], nil
}

func (s *memRateStore) RateSet(domain, day string, count int) error {
	s.m[domain+"|"+day] = count
	return nil
}

func TestRateLimiter_StoreBacked(t *testing.T) {
	// WHAT: Counters write through to the store and are read back on a
	// cold start.
	// WHY: Quotas must survive process restarts.
	store := &memRateStore{m: map[string]int{}}
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := func() time.Time { return clock }

	r1 := NewRateLimiter(2, WithRateClock(tick), WithRateStore(store))
	r1.Record("x.com")
	r1.Record("x.com")

	// Fresh limiter, same store: quota is already spent.
	r2 := NewRateLimiter(2, WithRateClock(tick), WithRateStore(store))
	if r2.Allow("x.com") {
		t.Error("persisted count must be honored after restart")
	}
}
