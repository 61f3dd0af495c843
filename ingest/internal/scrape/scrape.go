// CLAUDE:SUMMARY DomainScraper contract and the per-domain Runner: breaker/quota gates, result cache, HTTP-first with browser escalation.
// Package scrape extracts article records from sources that publish no feed.
// Each supported domain gets one small Scraper value; the Runner composes it
// with the cheap HTTP path, the expensive browser path, the circuit breaker,
// and the daily browser quota. A scrape produces the same FetchResult shape
// as a feed fetch, so the pipeline never cares which path a source took.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/crewire/ingest/internal/feed"
	"github.com/hazyhaar/crewire/ingest/internal/fetchclient"
	"github.com/hazyhaar/crewire/ingest/internal/guard"
	"github.com/hazyhaar/crewire/ingest/internal/normalize"
	"github.com/hazyhaar/crewire/ingest/model"
)

// RawArticle is one extracted article before normalization.
type RawArticle struct {
	Title       string
	Link        string
	Description string
	Author      string
	Image       string
	Published   time.Time
}

// Scraper extracts articles from a page of its domain. The same extraction
// runs against raw HTTP bytes (cheap path) and browser-rendered HTML
// (expensive path).
type Scraper interface {
	Domain() string
	Extract(html []byte, baseURL string) []RawArticle
}

// Renderer is the expensive acquisition path (stealth browser). A Renderer
// may refuse (allowlist, quota) or fail (unresolved challenge); both surface
// as errors here and are never retried within a run.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// Strategy selects the acquisition path for a domain.
type Strategy string

const (
	StrategyHTTP            Strategy = "http"
	StrategyBrowser         Strategy = "browser"
	StrategyHTTPWithBrowser Strategy = "http-with-browser-fallback"
)

// Target is one page to scrape within a domain.
type Target struct {
	URL   string
	Label string
}

// RunnerConfig wires one domain's runner.
type RunnerConfig struct {
	Domain     string
	SourceName string
	Region     string
	Targets    []Target
	Strategy   Strategy

	Scraper    Scraper
	Fetch      *fetchclient.Client
	Renderer   Renderer // nil disables the browser path
	Breaker    *guard.Breaker
	Limiter    *guard.RateLimiter
	Normalizer *normalize.Normalizer

	Timeout  time.Duration // per-target HTTP timeout
	CacheTTL time.Duration // short-lived per-target result cache. Default: 30min.
	Logger   *slog.Logger
}

func (c *RunnerConfig) defaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyHTTP
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type cachedItems struct {
	items []model.Item
	at    time.Time
}

// Runner scrapes all targets of one domain.
type Runner struct {
	cfg   RunnerConfig
	mu    sync.Mutex
	cache map[string]cachedItems
	now   func() time.Time
}

// NewRunner creates a Runner. Per the breaker/limiter ownership rule, the
// breaker and limiter instances are the runner's own, not shared with feed
// sources.
func NewRunner(cfg RunnerConfig) *Runner {
	cfg.defaults()
	return &Runner{
		cfg:   cfg,
		cache: make(map[string]cachedItems),
		now:   time.Now,
	}
}

// Domain returns the domain this runner scrapes.
func (r *Runner) Domain() string { return r.cfg.Domain }

// Blocked exposes the runner's open breaker entries.
func (r *Runner) Blocked() []guard.BlockedEntry {
	return r.cfg.Breaker.Blocked()
}

// Run scrapes every target once and aggregates. A blocked breaker
// short-circuits with zero I/O; a browser-only strategy with spent quota
// refuses the same way.
func (r *Runner) Run(ctx context.Context) model.FetchResult {
	log := r.cfg.Logger.With("domain", r.cfg.Domain)
	start := r.now()

	meta := model.ResultMeta{SourceName: r.cfg.SourceName}

	if !r.cfg.Breaker.Allow(r.cfg.Domain) {
		meta.Duration = r.now().Sub(start)
		return model.FetchResult{
			Status: model.StatusBlocked,
			Err:    fmt.Sprintf("circuit open: %s", r.cfg.Breaker.Reason(r.cfg.Domain)),
			Meta:   meta,
		}
	}
	if r.cfg.Strategy == StrategyBrowser && !r.cfg.Limiter.Allow(r.cfg.Domain) {
		meta.Duration = r.now().Sub(start)
		return model.FetchResult{
			Status: model.StatusError,
			Err:    "daily browser quota exhausted",
			Meta:   meta,
		}
	}

	var (
		items   []model.Item
		lastErr error
	)
	for _, target := range r.cfg.Targets {
		got, err := r.runTarget(ctx, target)
		if err != nil {
			lastErr = err
			log.Warn("scrape: target failed", "target", target.URL, "error", err)
			continue
		}
		meta.RawCount += got.raw
		meta.FilteredCount += got.filtered
		items = append(items, got.items...)
	}

	meta.KeptCount = len(items)
	meta.Duration = r.now().Sub(start)

	if len(items) > 0 {
		r.cfg.Breaker.Success(r.cfg.Domain)
		log.Info("scrape: done", "kept", len(items), "raw", meta.RawCount, "duration_ms", meta.Duration.Milliseconds())
		return model.FetchResult{Status: model.StatusOK, Items: items, Meta: meta}
	}

	reason := "no articles extracted"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	r.cfg.Breaker.Failure(r.cfg.Domain, reason)
	return model.FetchResult{Status: model.StatusError, Err: reason, Meta: meta}
}

type targetResult struct {
	items    []model.Item
	raw      int
	filtered int
}

func (r *Runner) runTarget(ctx context.Context, target Target) (targetResult, error) {
	if cached, ok := r.cacheGet(target.URL); ok {
		return targetResult{items: cached, raw: len(cached)}, nil
	}

	raws, err := r.acquire(ctx, target)
	if err != nil {
		return targetResult{}, err
	}

	res := targetResult{raw: len(raws)}
	for _, ra := range raws {
		item, keep := r.cfg.Normalizer.Item(entryFromRaw(ra), model.Source{
			URL:    target.URL,
			Name:   r.cfg.SourceName,
			Region: r.cfg.Region,
			Type:   model.SourceScrape,
		})
		if !keep {
			res.filtered++
			continue
		}
		res.items = append(res.items, item)
	}

	if len(res.items) > 0 {
		r.cachePut(target.URL, res.items)
	}
	return res, nil
}

// acquire runs the configured strategy. The browser path is invoked at most
// once per target per run; an empty browser result is final.
func (r *Runner) acquire(ctx context.Context, target Target) ([]RawArticle, error) {
	switch r.cfg.Strategy {
	case StrategyBrowser:
		return r.acquireBrowser(ctx, target)

	case StrategyHTTPWithBrowser:
		raws, err := r.acquireHTTP(ctx, target)
		if err == nil && len(raws) > 0 {
			return raws, nil
		}
		if r.cfg.Renderer == nil {
			if err != nil {
				return nil, err
			}
			return raws, nil
		}
		// Extraction came up empty (or HTTP failed): escalate once.
		return r.acquireBrowser(ctx, target)

	default:
		return r.acquireHTTP(ctx, target)
	}
}

func (r *Runner) acquireHTTP(ctx context.Context, target Target) ([]RawArticle, error) {
	res, err := r.cfg.Fetch.FetchRetry(ctx, target.URL, nil, r.cfg.Timeout, fetchclient.RetryConfig{Logger: r.cfg.Logger})
	if err != nil {
		var se *fetchclient.StatusError
		if errors.As(err, &se) && (se.Code == 403 || guard.IsChallenge([]byte(se.Preview))) {
			r.cfg.Breaker.Block(r.cfg.Domain, fmt.Sprintf("anti-bot block (http %d)", se.Code), se.Preview)
		}
		return nil, fmt.Errorf("scrape: http %s: %w", target.URL, err)
	}
	if guard.IsChallenge(res.Body) {
		r.cfg.Breaker.Block(r.cfg.Domain, "anti-bot challenge page", guard.Preview(res.Body, 200))
		return nil, fmt.Errorf("scrape: challenge page at %s", target.URL)
	}
	return r.cfg.Scraper.Extract(res.Body, target.URL), nil
}

func (r *Runner) acquireBrowser(ctx context.Context, target Target) ([]RawArticle, error) {
	if r.cfg.Renderer == nil {
		return nil, fmt.Errorf("scrape: no renderer configured for %s", r.cfg.Domain)
	}
	body, err := r.cfg.Renderer.Render(ctx, target.URL)
	if err != nil {
		return nil, fmt.Errorf("scrape: render %s: %w", target.URL, err)
	}
	return r.cfg.Scraper.Extract(body, target.URL), nil
}

func (r *Runner) cacheGet(url string) ([]model.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[url]
	if !ok || r.now().Sub(c.at) > r.cfg.CacheTTL {
		return nil, false
	}
	return c.items, true
}

func (r *Runner) cachePut(url string, items []model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[url] = cachedItems{items: items, at: r.now()}
}

func entryFromRaw(ra RawArticle) feed.Entry {
	return feed.Entry{
		Title:       ra.Title,
		Links:       feed.LinkSet{Primary: ra.Link},
		Description: ra.Description,
		Author:      ra.Author,
		Image:       ra.Image,
		Published:   ra.Published,
	}
}
