// CLAUDE:SUMMARY Per-source circuit breaker with escalating cooldowns, a 24h full block at threshold, and a blocked-sources snapshot.
// Package guard contains the protective state machines consulted before any
// fetch: the per-source circuit breaker, the per-domain daily rate limiter,
// and the anti-bot challenge detector that decides which failures deserve an
// extended block.
package guard

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Breaker defaults. Failures below the threshold earn an escalating soft
// cooldown so a transient blip doesn't cost a source the full day.
const (
	DefaultThreshold    = 3
	DefaultSoftCooldown = 30 * time.Minute
	DefaultOpenCooldown = 24 * time.Hour
)

type breakerEntry struct {
	failures     int
	blockedUntil time.Time
	reason       string
	preview      string
}

// BlockedEntry is a snapshot of one open breaker, for operational visibility.
type BlockedEntry struct {
	Key          string
	Reason       string
	BlockedUntil time.Time
	Preview      string
	Failures     int
}

// Breaker tracks failures per key (source URL or domain). All state lives
// behind one mutex; keys are created lazily on first failure.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*breakerEntry
	threshold    int
	softCooldown time.Duration
	openCooldown time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithThreshold sets the failure count that triggers the full cooldown.
func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

// WithCooldowns sets the soft (per-failure) and open (at-threshold) cooldowns.
func WithCooldowns(soft, open time.Duration) BreakerOption {
	return func(b *Breaker) { b.softCooldown = soft; b.openCooldown = open }
}

// WithClock sets a custom clock (for testing).
func WithClock(fn func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) { b.logger = l }
}

// NewBreaker creates a breaker: 3 failures open it for 24h, earlier failures
// cool down for 30min * failureCount.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		entries:      make(map[string]*breakerEntry),
		threshold:    DefaultThreshold,
		softCooldown: DefaultSoftCooldown,
		openCooldown: DefaultOpenCooldown,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether a call for key may proceed. An elapsed cooldown
// lets one call through (half-open); its outcome decides what happens next.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return true
	}
	return !b.now().Before(e.blockedUntil)
}

// Failure records an ordinary failure for key. Below the threshold the
// cooldown escalates per failure; at the threshold the breaker opens for
// the full cooldown.
func (b *Breaker) Failure(key, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(key)
	e.failures++
	e.reason = reason
	if e.failures >= b.threshold {
		e.blockedUntil = b.now().Add(b.openCooldown)
		b.logger.Warn("guard: breaker open",
			"key", key, "failures", e.failures, "until", e.blockedUntil, "reason", reason)
		return
	}
	e.blockedUntil = b.now().Add(b.softCooldown * time.Duration(e.failures))
	b.logger.Info("guard: breaker cooldown",
		"key", key, "failures", e.failures, "until", e.blockedUntil, "reason", reason)
}

// Block opens the breaker immediately for the full cooldown, bypassing the
// failure count. Used for anti-bot challenges and bare 403s, where retrying
// sooner only digs the hole deeper. preview carries response bytes for
// diagnostics.
func (b *Breaker) Block(key, reason, preview string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(key)
	if e.failures < b.threshold {
		e.failures = b.threshold
	}
	e.blockedUntil = b.now().Add(b.openCooldown)
	e.reason = reason
	e.preview = preview
	b.logger.Warn("guard: breaker blocked", "key", key, "until", e.blockedUntil, "reason", reason)
}

// Success resets key entirely: failure count to zero, cooldown cleared.
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// Reason returns the last recorded failure reason for key, if any.
func (b *Breaker) Reason(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok {
		return e.reason
	}
	return ""
}

// Blocked returns a snapshot of all currently open breakers, sorted by key.
func (b *Breaker) Blocked() []BlockedEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	var out []BlockedEntry
	for key, e := range b.entries {
		if now.Before(e.blockedUntil) {
			out = append(out, BlockedEntry{
				Key:          key,
				Reason:       e.reason,
				BlockedUntil: e.blockedUntil,
				Preview:      e.preview,
				Failures:     e.failures,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// entry returns the record for key, creating it lazily. Must hold mu.
func (b *Breaker) entry(key string) *breakerEntry {
	e, ok := b.entries[key]
	if !ok {
		e = &breakerEntry{}
		b.entries[key] = e
	}
	return e
}
