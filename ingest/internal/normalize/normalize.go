// CLAUDE:SUMMARY Maps raw feed/scraped entries to canonical items: stable ID, tracking-stripped link, stripped text, image, classification.
// Package normalize turns raw feed entries and scraped articles into
// canonical items. Identity is a pure function of the entry's GUID, canonical
// link or title, so re-fetching the same article always produces the same
// item ID.
package normalize

import (
	"crypto/sha256"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/crewire/classify"
	"github.com/hazyhaar/crewire/ingest/internal/feed"
	"github.com/hazyhaar/crewire/ingest/model"
)

// trackingParams are stripped from every canonical link. utm_* is matched
// by prefix.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
}

var imgSrcRe = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)

// placeholderSeeds give every link-hashed placeholder a stable but varied
// image. Same article, same placeholder, every run.
var placeholderSeeds = []string{
	"industrial-a", "industrial-b", "industrial-c", "industrial-d",
	"logistics-a", "logistics-b", "warehouse-a", "warehouse-b",
}

// fallback date layouts for feeds whose dates the primary parser missed.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z07:00",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer builds canonical items.
type Normalizer struct {
	strip    *bluemonday.Policy
	classify classify.Func
	now      func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets a custom clock (for testing).
func WithClock(fn func() time.Time) Option {
	return func(n *Normalizer) { n.now = fn }
}

// New creates a Normalizer using fn for classification.
func New(fn classify.Func, opts ...Option) *Normalizer {
	n := &Normalizer{
		strip:    bluemonday.StrictPolicy(),
		classify: fn,
		now:      time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Item normalizes one feed entry for a source. keep is false when the item
// classifies at the lowest tier (hard drop) or is unusable (no title).
func (n *Normalizer) Item(e feed.Entry, src model.Source) (item model.Item, keep bool) {
	title := collapse(n.strip.Sanitize(e.Title))
	if title == "" {
		return model.Item{}, false
	}

	link := CanonicalLink(e.Links.Resolve())
	desc := n.StripHTML(firstNonEmpty(e.Description, e.Content))
	fetchedAt := n.now().UTC()

	res := n.classify(title, desc, link, src.Name, string(src.Type))
	if res.Tier == classify.TierC {
		return model.Item{}, false
	}

	item = model.Item{
		ID:            ID(e.GUID, link, title),
		CanonicalLink: link,
		Title:         title,
		Description:   desc,
		Author:        e.Author,
		SourceName:    src.Name,
		SourceDomain:  Domain(firstNonEmpty(link, src.URL)),
		PublishedAt:   publishedAt(e, fetchedAt),
		FetchedAt:     fetchedAt,
		ImageURL:      imageFor(e, link),
		Tier:          res.Tier,
		Score:         res.Score,
		Category:      res.Category,
	}
	if src.Region != "" {
		item.Regions = []string{src.Region}
	}
	return item, true
}

// ID derives the stable item identity: sha256 of the GUID when present, else
// of the canonical link, else of the collapsed title. All three are immutable
// properties of the article, never of the fetch; without the title fallback,
// every GUID-less, link-less entry would collide on the empty hash.
func ID(guid, canonicalLink, title string) string {
	input := guid
	if input == "" {
		input = canonicalLink
	}
	if input == "" {
		input = collapse(title)
	}
	h := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", h[:16])
}

// CanonicalLink normalizes raw into an absolute URL with tracking query
// parameters and the fragment stripped. Malformed or relative values return "".
func CanonicalLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if trackingParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Domain extracts the lowercased host of a URL, without a www prefix.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// StripHTML removes tags, unescapes entities, and collapses whitespace.
func (n *Normalizer) StripHTML(s string) string {
	return collapse(html.UnescapeString(n.strip.Sanitize(s)))
}

func publishedAt(e feed.Entry, fetchedAt time.Time) time.Time {
	if !e.Published.IsZero() {
		return e.Published.UTC()
	}
	raw := strings.TrimSpace(e.PublishedRaw)
	if raw != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return fetchedAt
}

// imageFor resolves the item image: explicit media/enclosure field, first
// <img> in the encoded content or description, else a placeholder derived
// from the canonical link so the same article keeps the same image across runs.
func imageFor(e feed.Entry, canonicalLink string) string {
	if e.Image != "" {
		return e.Image
	}
	for _, source := range []string{e.Content, e.Description} {
		if m := imgSrcRe.FindStringSubmatch(source); m != nil {
			if img := CanonicalLink(m[1]); img != "" {
				return img
			}
		}
	}
	return Placeholder(canonicalLink)
}

// Placeholder returns the deterministic placeholder image for a link.
func Placeholder(canonicalLink string) string {
	h := sha256.Sum256([]byte(canonicalLink))
	seed := placeholderSeeds[int(h[0])%len(placeholderSeeds)]
	return fmt.Sprintf("https://picsum.photos/seed/%s-%x/640/360", seed, h[1:5])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
