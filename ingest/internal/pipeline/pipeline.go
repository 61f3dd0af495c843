// CLAUDE:SUMMARY Run orchestration: concurrent per-source feed fetches plus domain scrape runners, aggregation, cross-source dedup, run summary.
// Package pipeline runs one full ingestion pass. Every enabled feed source
// and every scrape runner executes concurrently; results aggregate in
// configuration order, deduplicate across sources, and roll up into a
// Summary. One bad source never fails a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/crewire/ingest/internal/dedup"
	"github.com/hazyhaar/crewire/ingest/internal/feed"
	"github.com/hazyhaar/crewire/ingest/internal/fetchclient"
	"github.com/hazyhaar/crewire/ingest/internal/guard"
	"github.com/hazyhaar/crewire/ingest/internal/normalize"
	"github.com/hazyhaar/crewire/ingest/internal/scrape"
	"github.com/hazyhaar/crewire/ingest/internal/stealth"
	"github.com/hazyhaar/crewire/ingest/internal/store"
	"github.com/hazyhaar/crewire/ingest/model"
)

// FeedRecoverer is the browser fallback for feed sources whose plain-HTTP
// path is walled off. *stealth.Fetcher satisfies it.
type FeedRecoverer interface {
	Allowed(domain string) bool
	FetchFeed(ctx context.Context, url string) ([]byte, error)
}

// FetchLogger persists per-source outcomes. *store.Store satisfies it.
type FetchLogger interface {
	InsertFetchLog(ctx context.Context, e *store.FetchLogEntry) error
}

// Config wires a Pipeline.
type Config struct {
	Sources []model.Source   // feed sources; disabled ones are skipped
	Runners []*scrape.Runner // one per scraped domain

	Fetch      *fetchclient.Client
	Breaker    *guard.Breaker // feed-source breaker, keyed by source URL
	Normalizer *normalize.Normalizer
	Recoverer  FeedRecoverer // nil disables the browser fallback
	FetchLog   FetchLogger   // nil disables persistence

	RecentCount int // items surfaced in Summary.RecentItems. Default: 5.
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.RecentCount <= 0 {
		c.RecentCount = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline executes ingestion runs.
type Pipeline struct {
	cfg Config
	now func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg, now: time.Now}
}

// Run executes one full pass over all sources and runners.
func (p *Pipeline) Run(ctx context.Context) *model.RunResult {
	type slot struct {
		name string
		res  model.FetchResult
	}

	var enabled []model.Source
	for _, src := range p.cfg.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	slots := make([]slot, len(enabled)+len(p.cfg.Runners))
	var wg sync.WaitGroup
	for i, src := range enabled {
		wg.Add(1)
		go func(i int, src model.Source) {
			defer wg.Done()
			slots[i] = slot{name: src.Name, res: p.fetchFeed(ctx, src)}
		}(i, src)
	}
	for i, r := range p.cfg.Runners {
		wg.Add(1)
		go func(i int, r *scrape.Runner) {
			defer wg.Done()
			slots[len(enabled)+i] = slot{name: r.Domain(), res: r.Run(ctx)}
		}(i, r)
	}
	wg.Wait()

	run := &model.RunResult{}
	var all []model.Item
	for _, s := range slots {
		run.Results = append(run.Results, s.res)
		all = append(all, s.res.Items...)
		run.Summary.TotalFetched += s.res.Meta.RawCount
		p.logResult(ctx, s.name, s.res)
	}

	run.Items = dedup.Collapse(all)
	run.Summary.Timestamp = p.now()
	run.Summary.TotalKept = len(run.Items)
	run.Summary.SourcesProcessed = len(slots)
	p.summarizeRecent(run)
	run.Blocked = p.blocked()

	p.cfg.Logger.Info("pipeline: run complete",
		"sources", run.Summary.SourcesProcessed,
		"fetched", run.Summary.TotalFetched,
		"kept", run.Summary.TotalKept,
		"blocked", len(run.Blocked))
	return run
}

// fetchFeed acquires and normalizes one feed source. The breaker is keyed by
// source URL; a blocked source performs no I/O at all.
func (p *Pipeline) fetchFeed(ctx context.Context, src model.Source) model.FetchResult {
	log := p.cfg.Logger.With("source", src.Name)
	start := p.now()
	meta := model.ResultMeta{SourceName: src.Name}
	done := func(res model.FetchResult) model.FetchResult {
		res.Meta.Duration = p.now().Sub(start)
		return res
	}

	if !p.cfg.Breaker.Allow(src.URL) {
		return done(model.FetchResult{
			Status: model.StatusBlocked,
			Err:    fmt.Sprintf("circuit open: %s", p.cfg.Breaker.Reason(src.URL)),
			Meta:   meta,
		})
	}

	body, err := p.acquireFeed(ctx, src, log)
	if err != nil {
		p.cfg.Breaker.Failure(src.URL, err.Error())
		return done(model.FetchResult{Status: model.StatusError, Err: err.Error(), Meta: meta})
	}

	parsed, err := feed.Parse(body)
	if err != nil {
		p.cfg.Breaker.Failure(src.URL, err.Error())
		return done(model.FetchResult{Status: model.StatusError, Err: err.Error(), Meta: meta})
	}

	var items []model.Item
	meta.RawCount = len(parsed.Entries)
	for _, e := range parsed.Entries {
		item, keep := p.cfg.Normalizer.Item(e, src)
		if !keep {
			meta.FilteredCount++
			continue
		}
		items = append(items, item)
	}
	meta.KeptCount = len(items)

	p.cfg.Breaker.Success(src.URL)
	log.Info("pipeline: source done", "raw", meta.RawCount, "kept", meta.KeptCount)
	return done(model.FetchResult{Status: model.StatusOK, Items: items, Meta: meta})
}

// acquireFeed gets feed bytes: plain HTTP with retries first, then the
// stealth browser for allowlisted domains when HTTP is walled off.
func (p *Pipeline) acquireFeed(ctx context.Context, src model.Source, log *slog.Logger) ([]byte, error) {
	res, err := p.cfg.Fetch.FetchRetry(ctx, src.URL, src.Headers, src.Timeout,
		fetchclient.RetryConfig{Logger: log})
	if err != nil {
		var se *fetchclient.StatusError
		walled := errors.As(err, &se) && (se.Code == 403 || guard.IsChallenge([]byte(se.Preview)))
		if walled {
			p.cfg.Breaker.Block(src.URL, fmt.Sprintf("anti-bot block (http %d)", se.Code), se.Preview)
			if body, ok := p.recoverFeed(ctx, src, log); ok {
				return body, nil
			}
		}
		return nil, err
	}

	// A challenge page, or HTML where XML belongs, means the wall is up even
	// though the status was 200.
	if guard.IsChallenge(res.Body) {
		p.cfg.Breaker.Block(src.URL, "anti-bot challenge page", guard.Preview(res.Body, 200))
		if body, ok := p.recoverFeed(ctx, src, log); ok {
			return body, nil
		}
		return nil, fmt.Errorf("pipeline: challenge page at %s", src.URL)
	}
	if guard.LooksLikeHTMLDocument(res.Body) && !guard.LooksLikeFeed(res.Body) {
		p.cfg.Breaker.Block(src.URL, "html document where feed expected", guard.Preview(res.Body, 200))
		if body, ok := p.recoverFeed(ctx, src, log); ok {
			return body, nil
		}
		return nil, fmt.Errorf("pipeline: html document where feed expected at %s", src.URL)
	}
	return res.Body, nil
}

func (p *Pipeline) recoverFeed(ctx context.Context, src model.Source, log *slog.Logger) ([]byte, bool) {
	if p.cfg.Recoverer == nil {
		return nil, false
	}
	domain := normalize.Domain(src.URL)
	if domain == "" || !p.cfg.Recoverer.Allowed(domain) {
		return nil, false
	}
	body, err := p.cfg.Recoverer.FetchFeed(ctx, src.URL)
	if err != nil {
		log.Warn("pipeline: browser recovery failed", "error", err)
		return nil, false
	}
	log.Info("pipeline: feed recovered via browser")
	// A successful parse downstream clears the breaker; the next run retries
	// plain HTTP first and re-blocks if the wall is still up.
	return body, true
}

// summarizeRecent fills MostRecentItem and RecentItems from the deduped set.
func (p *Pipeline) summarizeRecent(run *model.RunResult) {
	if len(run.Items) == 0 {
		return
	}
	byRecency := append([]model.Item(nil), run.Items...)
	sort.SliceStable(byRecency, func(i, j int) bool {
		return byRecency[i].PublishedAt.After(byRecency[j].PublishedAt)
	})
	run.Summary.MostRecentItem = &byRecency[0]
	n := p.cfg.RecentCount
	if n > len(byRecency) {
		n = len(byRecency)
	}
	run.Summary.RecentItems = byRecency[:n]
}

// blocked merges the feed breaker's open entries with every runner's.
func (p *Pipeline) blocked() []model.BlockedSource {
	var out []model.BlockedSource
	add := func(entries []guard.BlockedEntry) {
		for _, e := range entries {
			out = append(out, model.BlockedSource{
				URL:          e.Key,
				Reason:       e.Reason,
				BlockedUntil: e.BlockedUntil,
				Preview:      e.Preview,
			})
		}
	}
	add(p.cfg.Breaker.Blocked())
	for _, r := range p.cfg.Runners {
		add(r.Blocked())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (p *Pipeline) logResult(ctx context.Context, name string, res model.FetchResult) {
	if p.cfg.FetchLog == nil {
		return
	}
	err := p.cfg.FetchLog.InsertFetchLog(ctx, &store.FetchLogEntry{
		Source:        name,
		Status:        res.Status,
		RawCount:      res.Meta.RawCount,
		KeptCount:     res.Meta.KeptCount,
		FilteredCount: res.Meta.FilteredCount,
		DurationMs:    res.Meta.Duration.Milliseconds(),
		Error:         res.Err,
		FetchedAt:     p.now(),
	})
	if err != nil {
		p.cfg.Logger.Warn("pipeline: fetch log write failed", "source", name, "error", err)
	}
}

// interface conformance
var _ FeedRecoverer = (*stealth.Fetcher)(nil)
var _ FetchLogger = (*store.Store)(nil)
