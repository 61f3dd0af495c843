package scrape

import (
	"bytes"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// SelectorScraper is the one Scraper implementation: a domain tag, its
// selector families in priority order, and the URL patterns that gate the
// anchor-walk fallback. Site-specific behavior is data, not subclasses.
type SelectorScraper struct {
	domain   string
	families []selectorFamily
	patterns []*regexp.Regexp
}

// Domain returns the domain this scraper handles.
func (s *SelectorScraper) Domain() string { return s.domain }

// Extract pulls articles out of html: selector families first, then the
// anchor walk when every family comes up empty.
func (s *SelectorScraper) Extract(htmlBody []byte, baseURL string) []RawArticle {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err == nil {
		if out := extractFamilies(doc, base, s.families); len(out) > 0 {
			return out
		}
	}
	return extractAnchors(htmlBody, base, s.patterns)
}

// NewSelectorScraper builds a scraper from raw selector config (used for
// YAML-defined domains).
func NewSelectorScraper(domain string, families []SelectorConfig, urlPatterns []string) *SelectorScraper {
	s := &SelectorScraper{domain: domain}
	for _, f := range families {
		s.families = append(s.families, selectorFamily{
			item:        f.Item,
			title:       f.Title,
			link:        f.Link,
			description: f.Description,
			image:       f.Image,
			author:      f.Author,
		})
	}
	for _, p := range urlPatterns {
		if re, err := regexp.Compile(p); err == nil {
			s.patterns = append(s.patterns, re)
		}
	}
	return s
}

// SelectorConfig is one selector family as written in config.
type SelectorConfig struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Author      string `yaml:"author"`
}

// builtin scrapers for the industrial CRE domains shipped with the binary.
// Config-defined scrapers for the same domain override these.
var builtins = map[string]*SelectorScraper{
	"rebusinessonline.com": {
		domain: "rebusinessonline.com",
		families: []selectorFamily{
			{item: "article.post", title: "h2.entry-title a", link: "h2.entry-title a", description: ".entry-summary", image: "img"},
			{item: ".td_module_wrap", title: ".entry-title a", link: ".entry-title a", image: "img"},
		},
		patterns: compileAll(`/20\d\d/\d\d/`, `rebusinessonline\.com/[a-z0-9-]{20,}`),
	},
	"connectcre.com": {
		domain: "connectcre.com",
		families: []selectorFamily{
			{item: "article", title: "h3 a, h2 a", link: "h3 a, h2 a", description: ".excerpt, p", image: "img"},
			{item: ".story-card", title: ".story-card__title a", link: ".story-card__title a", image: "img"},
		},
		patterns: compileAll(`/stories/`, `/\d{4}/\d{2}/`),
	},
	"bisnow.com": {
		domain: "bisnow.com",
		families: []selectorFamily{
			{item: ".story-item", title: ".story-item__title", link: "a", description: ".story-item__description", image: "img"},
			{item: "article", title: "h2 a, h3 a", link: "h2 a, h3 a", image: "img"},
		},
		patterns: compileAll(`/news/`, `/industrial/`),
	},
	"commercialsearch.com": {
		domain: "commercialsearch.com",
		families: []selectorFamily{
			{item: "article.post-card", title: ".post-card__title a", link: ".post-card__title a", description: ".post-card__excerpt", image: "img"},
			{item: "article", title: "h2 a", link: "h2 a", image: "img"},
		},
		patterns: compileAll(`/news/`),
	},
}

// ForDomain returns the built-in scraper for domain, if one exists.
func ForDomain(domain string) (Scraper, bool) {
	s, ok := builtins[domain]
	return s, ok
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
