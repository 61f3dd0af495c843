// CLAUDE:SUMMARY Service wiring and run loop: config to pipeline, shared browser, SQLite persistence, status server, interval scheduling.
// Package ingest assembles the feed ingestion service: HTTP fetching with
// retries, per-source circuit breaking, per-domain browser quotas, scraping
// for feedless domains, normalization, classification and cross-source
// dedup, all behind one Run call and a small status API.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/crewire/classify"
	"github.com/hazyhaar/crewire/ingest/internal/fetchclient"
	"github.com/hazyhaar/crewire/ingest/internal/guard"
	"github.com/hazyhaar/crewire/ingest/internal/normalize"
	"github.com/hazyhaar/crewire/ingest/internal/pipeline"
	"github.com/hazyhaar/crewire/ingest/internal/scrape"
	"github.com/hazyhaar/crewire/ingest/internal/stealth"
	"github.com/hazyhaar/crewire/ingest/internal/store"
	"github.com/hazyhaar/crewire/ingest/model"
)

// Service is the assembled ingestion service.
type Service struct {
	cfg      *Config
	log      *slog.Logger
	db       *store.Store
	browser  *stealth.Browser
	pipe     *pipeline.Pipeline
	registry *prometheus.Registry
	metrics  *metrics

	mu   sync.Mutex
	last *model.RunResult
}

// New wires a Service from config. The caller owns Close.
func New(cfg *Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: open store: %w", err)
	}

	fetchCfg := fetchclient.Config{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    log,
	}
	if cfg.Fetch.AllowPrivate {
		fetchCfg.Validator = func(string) error { return nil }
	}
	fetch := fetchclient.New(fetchCfg)

	feedBreaker := guard.NewBreaker(guard.WithLogger(log))
	browserQuota := guard.NewRateLimiter(cfg.Stealth.DailyCap,
		guard.WithRateStore(db), guard.WithRateLogger(log))
	norm := normalize.New(classify.Default().Classify)

	browser := stealth.NewBrowser()
	var recoverer pipeline.FeedRecoverer
	var renderer scrape.Renderer
	if len(cfg.Stealth.Allowlist) > 0 {
		fetcher := stealth.New(stealth.Config{
			Allowlist: cfg.Stealth.Allowlist,
			Limiter:   browserQuota,
			Sessions:  db,
			Browser:   browser,
			CacheTTL:  cfg.Stealth.CacheTTL,
			Logger:    log,
		})
		recoverer = fetcher
		renderer = fetcher
	}

	runners, err := buildRunners(cfg, fetch, renderer, browserQuota, norm, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	s := &Service{
		cfg:      cfg,
		log:      log,
		db:       db,
		browser:  browser,
		registry: registry,
		metrics:  newMetrics(registry),
	}
	s.pipe = pipeline.New(pipeline.Config{
		Sources:     cfg.feedSources(),
		Runners:     runners,
		Fetch:       fetch,
		Breaker:     feedBreaker,
		Normalizer:  norm,
		Recoverer:   recoverer,
		FetchLog:    db,
		RecentCount: cfg.RecentCount,
		Logger:      log,
	})
	s.pruneStores(context.Background())
	return s, nil
}

// Retention for the startup maintenance pass. Rate counters only matter for
// the current UTC day; the fetch log is operational history, not an archive.
const (
	rateRetentionDays = 7
	fetchLogRetention = 30 * 24 * time.Hour
)

// pruneStores drops rows nothing will read again. Failures are logged and
// ignored; stale rows cost disk, not correctness.
func (s *Service) pruneStores(ctx context.Context) {
	day := time.Now().UTC().AddDate(0, 0, -rateRetentionDays).Format("2006-01-02")
	if err := s.db.RatePrune(ctx, day); err != nil {
		s.log.Warn("rate counter prune failed", "error", err)
	}
	cacheAge := 4 * s.cfg.Stealth.CacheTTL
	if cacheAge <= 0 {
		cacheAge = 24 * time.Hour
	}
	if err := s.db.CachePrune(ctx, cacheAge); err != nil {
		s.log.Warn("content cache prune failed", "error", err)
	}
	if err := s.db.FetchLogPrune(ctx, fetchLogRetention); err != nil {
		s.log.Warn("fetch log prune failed", "error", err)
	}
}

// buildRunners creates one scrape runner per enabled scraper config. Each
// runner gets its own breaker; the browser quota is shared service-wide.
func buildRunners(cfg *Config, fetch *fetchclient.Client, renderer scrape.Renderer,
	quota *guard.RateLimiter, norm *normalize.Normalizer, log *slog.Logger) ([]*scrape.Runner, error) {

	var runners []*scrape.Runner
	for _, sc := range cfg.Scrapers {
		if sc.Disabled {
			continue
		}
		var scraper scrape.Scraper
		if len(sc.Selectors) > 0 {
			scraper = scrape.NewSelectorScraper(sc.Domain, sc.Selectors, sc.URLPatterns)
		} else if builtin, ok := scrape.ForDomain(sc.Domain); ok {
			scraper = builtin
		} else {
			return nil, fmt.Errorf("ingest: scraper %q: no selectors and no built-in", sc.Domain)
		}

		targets := make([]scrape.Target, 0, len(sc.Targets))
		for _, t := range sc.Targets {
			targets = append(targets, scrape.Target{URL: t.URL, Label: t.Label})
		}
		runners = append(runners, scrape.NewRunner(scrape.RunnerConfig{
			Domain:     sc.Domain,
			SourceName: sc.Name,
			Region:     sc.Region,
			Targets:    targets,
			Strategy:   scrape.Strategy(sc.Strategy),
			Scraper:    scraper,
			Fetch:      fetch,
			Renderer:   renderer,
			Breaker:    guard.NewBreaker(guard.WithLogger(log)),
			Limiter:    quota,
			Normalizer: norm,
			Timeout:    cfg.Fetch.Timeout,
			Logger:     log,
		}))
	}
	return runners, nil
}

// Run executes one ingestion pass and records it as the latest result.
func (s *Service) Run(ctx context.Context) *model.RunResult {
	start := time.Now()
	run := s.pipe.Run(ctx)

	s.metrics.runsTotal.Inc()
	s.metrics.runDuration.Observe(time.Since(start).Seconds())
	s.metrics.itemsFetched.Add(float64(run.Summary.TotalFetched))
	s.metrics.itemsKept.Add(float64(run.Summary.TotalKept))
	for _, res := range run.Results {
		s.metrics.sourceOutcomes.WithLabelValues(res.Status).Inc()
	}
	s.metrics.blockedSources.Set(float64(len(run.Blocked)))

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()
	return run
}

// Loop runs until ctx is canceled: one pass immediately, then one per
// configured interval.
func (s *Service) Loop(ctx context.Context) {
	s.Run(ctx)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Run(ctx)
		}
	}
}

// LastRun returns the most recent run result, or nil before the first run.
func (s *Service) LastRun() *model.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close releases the browser and the database.
func (s *Service) Close() error {
	berr := s.browser.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return berr
}
