package guard

import (
	"log/slog"
	"sync"
	"time"
)

// RateStore optionally persists daily counters so quotas survive restarts.
type RateStore interface {
	RateCount(domain, day string) (int, error)
	RateSet(domain, day string, count int) error
}

// RateLimiter caps expensive operations (stealth browser runs) per domain
// per UTC day. The counter key embeds the date, so rollover needs no reset
// task: a new day is simply a new key.
type RateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	cap    int
	now    func() time.Time
	store  RateStore
	logger *slog.Logger
}

// RateOption configures a RateLimiter.
type RateOption func(*RateLimiter)

// WithRateClock sets a custom clock (for testing).
func WithRateClock(fn func() time.Time) RateOption {
	return func(r *RateLimiter) { r.now = fn }
}

// WithRateStore backs the counters with a persistent store.
func WithRateStore(s RateStore) RateOption {
	return func(r *RateLimiter) { r.store = s }
}

// WithRateLogger sets the logger.
func WithRateLogger(l *slog.Logger) RateOption {
	return func(r *RateLimiter) { r.logger = l }
}

// NewRateLimiter creates a limiter with the given daily cap per domain.
func NewRateLimiter(dailyCap int, opts ...RateOption) *RateLimiter {
	r := &RateLimiter{
		counts: make(map[string]int),
		cap:    dailyCap,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allow reports whether domain has quota left today.
func (r *RateLimiter) Allow(domain string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(domain) < r.cap
}

// Record counts one use for domain today.
func (r *RateLimiter) Record(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := r.day()
	key := domain + "|" + day
	n := r.countLocked(domain) + 1
	r.counts[key] = n
	if r.store != nil {
		if err := r.store.RateSet(domain, day, n); err != nil {
			r.logger.Warn("guard: rate store write failed", "domain", domain, "error", err)
		}
	}
}

// Remaining returns the quota left for domain today.
func (r *RateLimiter) Remaining(domain string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := r.cap - r.countLocked(domain)
	if left < 0 {
		return 0
	}
	return left
}

// countLocked reads today's count, consulting the store on a cold key.
// Must hold mu.
func (r *RateLimiter) countLocked(domain string) int {
	day := r.day()
	key := domain + "|" + day
	if n, ok := r.counts[key]; ok {
		return n
	}
	if r.store != nil {
		if n, err := r.store.RateCount(domain, day); err == nil {
			r.counts[key] = n
			return n
		}
	}
	return 0
}

func (r *RateLimiter) day() string {
	return r.now().UTC().Format("2006-01-02")
}
