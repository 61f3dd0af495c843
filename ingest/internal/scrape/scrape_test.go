package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/crewire/classify"
	"github.com/hazyhaar/crewire/ingest/internal/fetchclient"
	"github.com/hazyhaar/crewire/ingest/internal/guard"
	"github.com/hazyhaar/crewire/ingest/internal/normalize"
	"github.com/hazyhaar/crewire/ingest/model"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func keepAll(title, description, link, sourceName, feedType string) classify.Result {
	return classify.Result{Tier: classify.TierA, Score: 5}
}

type fakeRenderer struct {
	calls atomic.Int32
	body  []byte
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	return f.body, f.err
}

type fakeScraper struct {
	domain string
	fn     func(html []byte, baseURL string) []RawArticle
}

func (f fakeScraper) Domain() string { return f.domain }
func (f fakeScraper) Extract(html []byte, baseURL string) []RawArticle {
	return f.fn(html, baseURL)
}

func articlesFrom(link string) []RawArticle {
	return []RawArticle{{
		Title: "Distribution Center Sells for Record Price",
		Link:  link,
	}}
}

func testClient() *fetchclient.Client {
	return fetchclient.New(fetchclient.Config{
		Validator: func(string) error { return nil },
	})
}

func newRunner(cfg RunnerConfig) *Runner {
	if cfg.Domain == "" {
		cfg.Domain = "example.com"
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "Example"
	}
	if cfg.Breaker == nil {
		cfg.Breaker = guard.NewBreaker()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = guard.NewRateLimiter(10)
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New(keepAll)
	}
	if cfg.Fetch == nil {
		cfg.Fetch = testClient()
	}
	return NewRunner(cfg)
}

func TestRun_HTTPStrategy(t *testing.T) {
	// WHAT: A plain HTTP scrape extracts, normalizes and reports OK, and the
	// breaker records a success.
	// WHY: The cheap path is the default for most scraped domains.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>page</body></html>"))
	}))
	defer srv.Close()

	r := newRunner(RunnerConfig{
		Targets: []Target{{URL: srv.URL, Label: "home"}},
		Scraper: fakeScraper{domain: "example.com", fn: func(_ []byte, _ string) []RawArticle {
			return articlesFrom("https://example.com/2026/big-sale")
		}},
	})

	res := r.Run(context.Background())
	if res.Status != model.StatusOK {
		t.Fatalf("status = %q, err = %q", res.Status, res.Err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	if res.Items[0].SourceName != "Example" {
		t.Errorf("source name = %q", res.Items[0].SourceName)
	}
}

func TestRun_BlockedBreakerDoesZeroIO(t *testing.T) {
	// WHAT: An open breaker returns a blocked result without any HTTP call.
	// WHY: Hammering a domain that blocked us makes the block permanent.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	breaker := guard.NewBreaker()
	breaker.Block("example.com", "anti-bot block", "")

	r := newRunner(RunnerConfig{
		Breaker: breaker,
		Targets: []Target{{URL: srv.URL}},
		Scraper: fakeScraper{domain: "example.com", fn: func(_ []byte, _ string) []RawArticle { return nil }},
	})

	res := r.Run(context.Background())
	if res.Status != model.StatusBlocked {
		t.Fatalf("status = %q, want blocked", res.Status)
	}
	if hits.Load() != 0 {
		t.Errorf("server was hit %d times, want 0", hits.Load())
	}
}

func TestRun_BrowserFallbackInvokedOnce(t *testing.T) {
	// WHAT: With the http-with-browser-fallback strategy, an empty HTTP
	// extraction escalates to the renderer exactly once, and an empty render
	// is final.
	// WHY: Browser sessions are the scarce resource; one escalation per
	// target per run is the contract.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>js-only shell</body></html>"))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{body: []byte("<html><body>still empty</body></html>")}
	r := newRunner(RunnerConfig{
		Strategy: StrategyHTTPWithBrowser,
		Renderer: renderer,
		Targets:  []Target{{URL: srv.URL}},
		Scraper:  fakeScraper{domain: "example.com", fn: func(_ []byte, _ string) []RawArticle { return nil }},
	})

	res := r.Run(context.Background())
	if res.Status != model.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if got := renderer.calls.Load(); got != 1 {
		t.Errorf("renderer called %d times, want 1", got)
	}
}

func TestRun_BrowserFallbackUsesRenderedHTML(t *testing.T) {
	// WHAT: When HTTP extraction is empty but the rendered page yields
	// articles, the run succeeds with the browser result.
	// WHY: JS-rendered listings are the whole point of the fallback.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>shell</body></html>"))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{body: []byte("<html><body>rendered articles</body></html>")}
	r := newRunner(RunnerConfig{
		Strategy: StrategyHTTPWithBrowser,
		Renderer: renderer,
		Targets:  []Target{{URL: srv.URL}},
		Scraper: fakeScraper{domain: "example.com", fn: func(html []byte, _ string) []RawArticle {
			if string(html) == string(renderer.body) {
				return articlesFrom("https://example.com/2026/rendered-story")
			}
			return nil
		}},
	})

	res := r.Run(context.Background())
	if res.Status != model.StatusOK || len(res.Items) != 1 {
		t.Fatalf("status = %q items = %d, want ok/1", res.Status, len(res.Items))
	}
}

func TestRun_BrowserOnlyQuotaRefusal(t *testing.T) {
	// WHAT: A browser-only domain with an exhausted daily quota refuses
	// without touching the renderer.
	// WHY: The quota protects the browser budget across runs, not per run.
	limiter := guard.NewRateLimiter(1)
	limiter.Record("example.com")

	renderer := &fakeRenderer{body: []byte("<html></html>")}
	r := newRunner(RunnerConfig{
		Strategy: StrategyBrowser,
		Renderer: renderer,
		Limiter:  limiter,
		Targets:  []Target{{URL: "https://example.com/news"}},
		Scraper:  fakeScraper{domain: "example.com", fn: func(_ []byte, _ string) []RawArticle { return nil }},
	})

	res := r.Run(context.Background())
	if res.Status != model.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if renderer.calls.Load() != 0 {
		t.Errorf("renderer called %d times, want 0", renderer.calls.Load())
	}
}

func TestRun_ChallengePageOpensBreaker(t *testing.T) {
	// WHAT: A challenge interstitial in the HTTP body opens the breaker with
	// an immediate 24h block.
	// WHY: Challenge pages mean the domain has flagged us; continuing makes
	// it worse.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!DOCTYPE html><html><body>Checking your browser before accessing</body></html>"))
	}))
	defer srv.Close()

	breaker := guard.NewBreaker()
	r := newRunner(RunnerConfig{
		Breaker: breaker,
		Targets: []Target{{URL: srv.URL}},
		Scraper: fakeScraper{domain: "example.com", fn: func(_ []byte, _ string) []RawArticle { return nil }},
	})

	res := r.Run(context.Background())
	if res.Status != model.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if breaker.Allow("example.com") {
		t.Error("breaker still allows the domain after a challenge page")
	}
}

func TestRun_TargetCacheSkipsRefetch(t *testing.T) {
	// WHAT: A second run within the cache TTL serves items from the target
	// cache without re-fetching.
	// WHY: Back-to-back runs (manual + scheduled) should not double-hit
	// scraped domains.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<html><body>page</body></html>"))
	}))
	defer srv.Close()

	r := newRunner(RunnerConfig{
		Targets: []Target{{URL: srv.URL}},
		Scraper: fakeScraper{domain: "example.com", fn: func(_ []byte, _ string) []RawArticle {
			return articlesFrom("https://example.com/2026/cached-story")
		}},
	})

	first := r.Run(context.Background())
	second := r.Run(context.Background())
	if first.Status != model.StatusOK || second.Status != model.StatusOK {
		t.Fatalf("statuses = %q, %q", first.Status, second.Status)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
	if len(second.Items) != 1 {
		t.Errorf("cached run returned %d items, want 1", len(second.Items))
	}
}
