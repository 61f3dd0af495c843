package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/crewire/classify"
	"github.com/hazyhaar/crewire/ingest/internal/fetchclient"
	"github.com/hazyhaar/crewire/ingest/internal/guard"
	"github.com/hazyhaar/crewire/ingest/internal/normalize"
	"github.com/hazyhaar/crewire/ingest/model"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Industrial Wire</title>
  <item>
    <guid>wire-1</guid>
    <title>Logistics Campus Sells for $240M in Dallas Market</title>
    <link>https://wire.example/2026/logistics-campus-sells</link>
    <pubDate>Mon, 02 Mar 2026 09:00:00 GMT</pubDate>
  </item>
  <item>
    <guid>wire-2</guid>
    <title>Cold Storage Developer Breaks Ground on Port Site</title>
    <link>https://wire.example/2026/cold-storage-ground</link>
    <pubDate>Tue, 03 Mar 2026 09:00:00 GMT</pubDate>
  </item>
</channel></rss>`

func keepAll(title, description, link, sourceName, feedType string) classify.Result {
	return classify.Result{Tier: classify.TierA, Score: 5}
}

func testClient() *fetchclient.Client {
	return fetchclient.New(fetchclient.Config{
		Validator: func(string) error { return nil },
	})
}

func newPipeline(cfg Config) *Pipeline {
	if cfg.Fetch == nil {
		cfg.Fetch = testClient()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = guard.NewBreaker()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New(keepAll)
	}
	return New(cfg)
}

func TestRun_FeedSourceEndToEnd(t *testing.T) {
	// WHAT: One enabled feed source fetches, parses, normalizes and rolls
	// up into the summary with the most recent item on top.
	// WHY: This is the pipeline's primary path.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := newPipeline(Config{
		Sources: []model.Source{{URL: srv.URL, Name: "Industrial Wire", Enabled: true}},
	})

	run := p.Run(context.Background())
	if len(run.Results) != 1 || run.Results[0].Status != model.StatusOK {
		t.Fatalf("results = %+v", run.Results)
	}
	if len(run.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(run.Items))
	}
	if run.Summary.TotalFetched != 2 || run.Summary.TotalKept != 2 || run.Summary.SourcesProcessed != 1 {
		t.Errorf("summary = %+v", run.Summary)
	}
	if run.Summary.MostRecentItem == nil ||
		run.Summary.MostRecentItem.Title != "Cold Storage Developer Breaks Ground on Port Site" {
		t.Errorf("most recent = %+v", run.Summary.MostRecentItem)
	}
}

func TestRun_DisabledSourceSkipped(t *testing.T) {
	// WHAT: A disabled source gets no goroutine, no fetch, no result slot.
	// WHY: Operators park flaky sources without deleting their config.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := newPipeline(Config{
		Sources: []model.Source{{URL: srv.URL, Name: "Parked", Enabled: false}},
	})

	run := p.Run(context.Background())
	if len(run.Results) != 0 || hits.Load() != 0 {
		t.Errorf("results = %d, hits = %d; want 0, 0", len(run.Results), hits.Load())
	}
}

func TestRun_BlockedSourceZeroIO(t *testing.T) {
	// WHAT: A source whose breaker is open returns a blocked result without
	// touching the network, and appears in the Blocked list.
	// WHY: The whole point of the breaker is not talking to the domain.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	breaker := guard.NewBreaker()
	breaker.Block(srv.URL, "anti-bot block (http 403)", "<html>denied")

	p := newPipeline(Config{
		Sources: []model.Source{{URL: srv.URL, Name: "Walled", Enabled: true}},
		Breaker: breaker,
	})

	run := p.Run(context.Background())
	if run.Results[0].Status != model.StatusBlocked {
		t.Fatalf("status = %q", run.Results[0].Status)
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times, want 0", hits.Load())
	}
	if len(run.Blocked) != 1 || run.Blocked[0].URL != srv.URL {
		t.Errorf("blocked = %+v", run.Blocked)
	}
	if run.Blocked[0].Preview == "" {
		t.Error("blocked entry lost its diagnostic preview")
	}
}

func TestRun_OneBadSourceDoesNotFailRun(t *testing.T) {
	// WHAT: A 500-ing source yields an error result while the healthy source
	// still delivers its items.
	// WHY: Per-source isolation is the orchestration contract.
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	p := newPipeline(Config{
		Sources: []model.Source{
			{URL: bad.URL, Name: "Broken", Enabled: true},
			{URL: good.URL, Name: "Healthy", Enabled: true},
		},
	})

	run := p.Run(context.Background())
	if len(run.Results) != 2 {
		t.Fatalf("got %d results", len(run.Results))
	}
	byName := map[string]model.FetchResult{}
	for _, r := range run.Results {
		byName[r.Meta.SourceName] = r
	}
	if byName["Broken"].Status != model.StatusError {
		t.Errorf("broken status = %q", byName["Broken"].Status)
	}
	if byName["Healthy"].Status != model.StatusOK || len(run.Items) != 2 {
		t.Errorf("healthy status = %q, items = %d", byName["Healthy"].Status, len(run.Items))
	}
}

func TestRun_CrossSourceDedup(t *testing.T) {
	// WHAT: The same article served by two sources survives once.
	// WHY: Wire stories syndicate; readers should see them once.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	})
	a := httptest.NewServer(handler)
	defer a.Close()
	b := httptest.NewServer(handler)
	defer b.Close()

	p := newPipeline(Config{
		Sources: []model.Source{
			{URL: a.URL, Name: "Outlet A", Enabled: true},
			{URL: b.URL, Name: "Outlet B", Enabled: true},
		},
	})

	run := p.Run(context.Background())
	if run.Summary.TotalFetched != 4 {
		t.Errorf("fetched = %d, want 4", run.Summary.TotalFetched)
	}
	if len(run.Items) != 2 {
		t.Errorf("kept %d items after dedup, want 2", len(run.Items))
	}
}

type fakeRecoverer struct {
	allowed map[string]bool
	body    []byte
	calls   atomic.Int32
}

func (f *fakeRecoverer) Allowed(domain string) bool { return f.allowed[domain] }
func (f *fakeRecoverer) FetchFeed(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.body == nil {
		return nil, errors.New("no feed")
	}
	return f.body, nil
}

func TestRun_HTMLWhereFeedExpected_BrowserRecovery(t *testing.T) {
	// WHAT: A source serving HTML at its feed URL is recovered through the
	// browser path when its domain is allowlisted.
	// WHY: Walled feeds should degrade to the expensive path, not go dark.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!DOCTYPE html><html><body>not a feed</body></html>"))
	}))
	defer srv.Close()

	rec := &fakeRecoverer{
		allowed: map[string]bool{normalize.Domain(srv.URL): true},
		body:    []byte(rssBody),
	}
	p := newPipeline(Config{
		Sources:   []model.Source{{URL: srv.URL, Name: "Walled Feed", Enabled: true}},
		Recoverer: rec,
	})

	run := p.Run(context.Background())
	if run.Results[0].Status != model.StatusOK {
		t.Fatalf("status = %q, err = %q", run.Results[0].Status, run.Results[0].Err)
	}
	if len(run.Items) != 2 {
		t.Errorf("items = %d, want 2", len(run.Items))
	}
	if rec.calls.Load() != 1 {
		t.Errorf("recoverer called %d times, want 1", rec.calls.Load())
	}
}

func TestRun_HTMLWhereFeedExpected_ExtendedBlock(t *testing.T) {
	// WHAT: A status-200 HTML document at a feed URL (no challenge markers)
	// opens the breaker for the full 24h cooldown with a body preview, not
	// the escalating soft cooldown of an ordinary failure.
	// WHY: HTML where XML belongs is an anti-bot wall with a friendly face;
	// a 30-minute cooldown would keep hammering the domain all day.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!doctype html><html><body>homepage</body></html>"))
	}))
	defer srv.Close()

	breaker := guard.NewBreaker()
	p := newPipeline(Config{
		Sources: []model.Source{{URL: srv.URL, Name: "Walled Feed", Enabled: true}},
		Breaker: breaker,
	})

	start := time.Now()
	run := p.Run(context.Background())
	if run.Results[0].Status != model.StatusError {
		t.Fatalf("status = %q", run.Results[0].Status)
	}

	blocked := breaker.Blocked()
	if len(blocked) != 1 {
		t.Fatalf("got %d blocked entries, want 1", len(blocked))
	}
	if until := blocked[0].BlockedUntil; until.Before(start.Add(23 * time.Hour)) {
		t.Errorf("blocked until %v, want the full-day cooldown", until.Sub(start))
	}
	if blocked[0].Preview == "" {
		t.Error("no diagnostic preview recorded")
	}
	if !strings.Contains(blocked[0].Preview, "<!doctype html>") {
		t.Errorf("preview = %q, want response body bytes", blocked[0].Preview)
	}
}
