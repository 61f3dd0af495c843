// CLAUDE:SUMMARY Stealth browser fetcher: allowlist and daily-quota gated, cookie-persisted, challenge-waiting page/feed acquisition over rod.
// Package stealth acquires pages through a real headless browser for the few
// domains whose anti-bot walls defeat plain HTTP. Every fetch is gated three
// ways (allowlist, content cache, daily quota) because a browser session is
// orders of magnitude more expensive than an HTTP request and every rendered
// visit burns goodwill with the target domain.
package stealth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	rodstealth "github.com/go-rod/stealth"
	"golang.org/x/net/html"

	"github.com/hazyhaar/crewire/ingest/internal/guard"
)

var (
	ErrNotAllowlisted = errors.New("stealth: domain not allowlisted")
	ErrQuotaExhausted = errors.New("stealth: daily browser quota exhausted")
	ErrChallenge      = errors.New("stealth: challenge not resolved")
	ErrNoFeed         = errors.New("stealth: no feed found")
)

// SessionStore persists cookie jars and rendered bodies between runs.
// *store.Store satisfies it.
type SessionStore interface {
	SaveCookies(ctx context.Context, domain string, jar []byte) error
	LoadCookies(ctx context.Context, domain string) ([]byte, error)
	CachePut(ctx context.Context, url string, body []byte) error
	CacheGet(ctx context.Context, url string, ttl time.Duration) ([]byte, bool, error)
}

// Config wires a Fetcher.
type Config struct {
	Allowlist []string            // domains allowed to use the browser
	Limiter   *guard.RateLimiter  // per-domain daily session quota
	Sessions  SessionStore        // nil disables cookies and the content cache
	Browser   *Browser            // shared instance; created if nil
	CacheTTL  time.Duration       // rendered-body cache TTL. Default: 6h.
	NavWait   time.Duration       // post-load challenge wait ceiling. Default: 18s.
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 6 * time.Hour
	}
	if c.NavWait <= 0 {
		c.NavWait = 18 * time.Second
	}
	if c.Browser == nil {
		c.Browser = NewBrowser()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher is the gated browser acquisition path.
type Fetcher struct {
	cfg   Config
	allow map[string]bool

	mu  sync.Mutex
	rnd *rand.Rand

	// injectable for tests
	navigate func(ctx context.Context, pageURL string) ([]byte, error)
	sleep    func(ctx context.Context, d time.Duration)
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	f := &Fetcher{
		cfg:   cfg,
		allow: make(map[string]bool, len(cfg.Allowlist)),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: ctxSleep,
	}
	for _, d := range cfg.Allowlist {
		f.allow[strings.ToLower(strings.TrimPrefix(d, "www."))] = true
	}
	f.navigate = f.browserNavigate
	return f
}

// Allowed reports whether domain may use the browser path at all.
func (f *Fetcher) Allowed(domain string) bool {
	return f.allow[strings.ToLower(strings.TrimPrefix(domain, "www."))]
}

// Close releases the shared browser.
func (f *Fetcher) Close() error { return f.cfg.Browser.Close() }

// FetchPage renders one page and returns its HTML. Gate order: allowlist,
// content cache, daily quota. A cache hit consumes no quota.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	domain, err := f.gate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if body, ok := f.cached(ctx, rawURL); ok {
		return body, nil
	}
	if !f.cfg.Limiter.Allow(domain) {
		return nil, ErrQuotaExhausted
	}
	f.cfg.Limiter.Record(domain)

	body, err := f.navigate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	f.cachePut(ctx, rawURL, body)
	return body, nil
}

// Render satisfies the scrape package's Renderer interface.
func (f *Fetcher) Render(ctx context.Context, rawURL string) ([]byte, error) {
	return f.FetchPage(ctx, rawURL)
}

// FetchFeed renders rawURL expecting feed XML. When the browser lands on an
// HTML page instead, it hunts the page's advertised feed links and then the
// conventional feed path suffixes, all within the same quota unit.
func (f *Fetcher) FetchFeed(ctx context.Context, rawURL string) ([]byte, error) {
	domain, err := f.gate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if body, ok := f.cached(ctx, rawURL); ok {
		return body, nil
	}
	if !f.cfg.Limiter.Allow(domain) {
		return nil, ErrQuotaExhausted
	}
	f.cfg.Limiter.Record(domain)

	body, err := f.navigate(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if guard.LooksLikeFeed(body) {
		f.cachePut(ctx, rawURL, body)
		return body, nil
	}

	log := f.cfg.Logger.With("domain", domain)
	for _, candidate := range FeedCandidates(body, rawURL) {
		got, err := f.navigate(ctx, candidate)
		if err != nil {
			log.Debug("stealth: feed candidate failed", "url", candidate, "error", err)
			continue
		}
		if guard.LooksLikeFeed(got) {
			log.Info("stealth: recovered feed", "url", candidate)
			f.cachePut(ctx, rawURL, got)
			return got, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoFeed, rawURL)
}

func (f *Fetcher) gate(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("stealth: bad url %q", rawURL)
	}
	domain := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	if !f.allow[domain] {
		return "", fmt.Errorf("%w: %s", ErrNotAllowlisted, domain)
	}
	return domain, nil
}

func (f *Fetcher) cached(ctx context.Context, rawURL string) ([]byte, bool) {
	if f.cfg.Sessions == nil {
		return nil, false
	}
	body, ok, err := f.cfg.Sessions.CacheGet(ctx, rawURL, f.cfg.CacheTTL)
	if err != nil {
		f.cfg.Logger.Warn("stealth: cache read failed", "url", rawURL, "error", err)
		return nil, false
	}
	return body, ok
}

func (f *Fetcher) cachePut(ctx context.Context, rawURL string, body []byte) {
	if f.cfg.Sessions == nil {
		return
	}
	if err := f.cfg.Sessions.CachePut(ctx, rawURL, body); err != nil {
		f.cfg.Logger.Warn("stealth: cache write failed", "url", rawURL, "error", err)
	}
}

// browserNavigate is the real acquisition: stealth page, coherent
// fingerprint, restored cookies, human-paced navigation, challenge wait.
func (f *Fetcher) browserNavigate(ctx context.Context, pageURL string) ([]byte, error) {
	br, err := f.cfg.Browser.get()
	if err != nil {
		return nil, err
	}
	page, err := rodstealth.Page(br)
	if err != nil {
		return nil, fmt.Errorf("stealth: open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	fp := f.fingerprint()
	if err := applyFingerprint(page, fp); err != nil {
		return nil, fmt.Errorf("stealth: apply fingerprint: %w", err)
	}

	u, _ := url.Parse(pageURL)
	domain := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	f.restoreCookies(ctx, page, domain)

	// Real visitors do not navigate the instant a tab opens.
	f.sleep(ctx, time.Duration(500+f.intn(1500))*time.Millisecond)

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("stealth: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("stealth: wait load %s: %w", pageURL, err)
	}
	humanize(page, f.rand())

	body, err := f.awaitContent(ctx, page)
	if err != nil {
		return nil, err
	}
	f.saveCookies(ctx, page, domain)
	return body, nil
}

// awaitContent polls past an interstitial: challenge pages typically clear
// within seconds once the JS proof-of-work finishes. Each round repeats the
// human input simulation with a longer wait, since some walls hold the page
// until they have seen real interaction.
func (f *Fetcher) awaitContent(ctx context.Context, page *rod.Page) ([]byte, error) {
	deadline := time.Now().Add(f.cfg.NavWait)
	for round := 0; ; round++ {
		htmlStr, err := page.HTML()
		if err != nil {
			return nil, fmt.Errorf("stealth: read html: %w", err)
		}
		body := []byte(htmlStr)
		if !guard.IsChallenge(body) {
			return body, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrChallenge, f.cfg.NavWait)
		}
		humanize(page, f.rand())
		f.sleep(ctx, challengeWait(round))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// challengeWait is the per-round delay while an interstitial resolves: 2s on
// the first round, a second longer each round after.
func challengeWait(round int) time.Duration {
	return 2*time.Second + time.Duration(round)*time.Second
}

func (f *Fetcher) restoreCookies(ctx context.Context, page *rod.Page, domain string) {
	if f.cfg.Sessions == nil {
		return
	}
	jar, err := f.cfg.Sessions.LoadCookies(ctx, domain)
	if err != nil || jar == nil {
		return
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(jar, &cookies); err != nil {
		return
	}
	if err := page.SetCookies(cookies); err != nil {
		f.cfg.Logger.Debug("stealth: restore cookies failed", "domain", domain, "error", err)
	}
}

func (f *Fetcher) saveCookies(ctx context.Context, page *rod.Page, domain string) {
	if f.cfg.Sessions == nil {
		return
	}
	got, err := page.Cookies(nil)
	if err != nil || len(got) == 0 {
		return
	}
	params := make([]*proto.NetworkCookieParam, 0, len(got))
	for _, c := range got {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		})
	}
	jar, err := json.Marshal(params)
	if err != nil {
		return
	}
	if err := f.cfg.Sessions.SaveCookies(ctx, domain, jar); err != nil {
		f.cfg.Logger.Debug("stealth: save cookies failed", "domain", domain, "error", err)
	}
}

func (f *Fetcher) fingerprint() fingerprint {
	return randomFingerprint(f.rand())
}

func (f *Fetcher) rand() *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd
}

func (f *Fetcher) intn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd.Intn(n)
}

// feedSuffixes are the conventional feed locations tried against the site
// root when a page advertises no feed link.
var feedSuffixes = []string{"/feed", "/feed/", "/rss", "/feed.xml", "/atom.xml", "/rss.xml"}

// FeedCandidates extracts the feed URLs advertised by an HTML page (link
// rel=alternate) and appends the conventional root-relative suffixes.
func FeedCandidates(body []byte, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(u).String()
		if !seen[abs] && abs != pageURL {
			seen[abs] = true
			out = append(out, abs)
		}
	}

	if root, err := html.Parse(strings.NewReader(string(body))); err == nil {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode && n.Data == "link" {
				var rel, typ, href string
				for _, a := range n.Attr {
					switch a.Key {
					case "rel":
						rel = strings.ToLower(a.Val)
					case "type":
						typ = strings.ToLower(a.Val)
					case "href":
						href = a.Val
					}
				}
				if rel == "alternate" && href != "" &&
					(strings.Contains(typ, "rss") || strings.Contains(typ, "atom") || strings.Contains(typ, "xml")) {
					add(href)
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(root)
	}

	root := *base
	root.Path = ""
	root.RawQuery = ""
	root.Fragment = ""
	for _, s := range feedSuffixes {
		add(root.String() + s)
	}
	return out
}

func ctxSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
