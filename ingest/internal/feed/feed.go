// CLAUDE:SUMMARY Two-tier RSS/Atom parsing: gofeed first, lenient XML token walk when strict parsing rejects the bytes.
// Package feed parses RSS 2.0 and Atom 1.0 into raw entries.
//
// Real-world feeds routinely carry minor XML violations (bad entities,
// unclosed tags, stray control bytes) that strict parsers reject outright,
// so parsing is two-tier: gofeed handles well-formed feeds and every dialect
// quirk, and a lenient token walk over the same bytes recovers entries when
// gofeed gives up.
package feed

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// LinkSet models the feed-dialect mess around links as one value with a
// single resolution rule, instead of ad hoc type checks at extraction sites.
type LinkSet struct {
	// Orig is a syndication "original link" extension (feedburner:origLink).
	Orig string
	// Primary is the item's main <link> value.
	Primary string
	// Alternates are Atom href variants, in document order.
	Alternates []string
	// PermalinkGUID is a GUID usable as a link (isPermaLink, or an absolute
	// http(s) URL).
	PermalinkGUID string
}

// Resolve applies the precedence: orig link > primary > first alternate >
// permalink GUID. Returns "" when nothing usable exists.
func (ls LinkSet) Resolve() string {
	if ls.Orig != "" {
		return ls.Orig
	}
	if ls.Primary != "" {
		return ls.Primary
	}
	if len(ls.Alternates) > 0 {
		return ls.Alternates[0]
	}
	return ls.PermalinkGUID
}

// Entry is one raw item, before normalization.
type Entry struct {
	GUID         string
	Title        string
	Links        LinkSet
	Description  string
	Content      string
	Author       string
	Published    time.Time // zero when the feed's date was absent/unparseable
	PublishedRaw string
	Image        string // explicit media/enclosure image, if any
	Categories   []string
}

// Feed is a parsed feed.
type Feed struct {
	Title   string
	Entries []Entry
}

// Parse parses data, trying gofeed first and the lenient fallback on error.
func Parse(data []byte) (*Feed, error) {
	f, primaryErr := parsePrimary(data)
	if primaryErr == nil {
		return f, nil
	}
	f, fallbackErr := parseFallback(data)
	if fallbackErr != nil {
		return nil, fmt.Errorf("feed: parse failed (primary: %v): %w", primaryErr, fallbackErr)
	}
	return f, nil
}

func parsePrimary(data []byte) (*Feed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	f := &Feed{
		Title:   strings.TrimSpace(parsed.Title),
		Entries: make([]Entry, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		f.Entries = append(f.Entries, fromGofeed(item))
	}
	return f, nil
}

func fromGofeed(item *gofeed.Item) Entry {
	e := Entry{
		GUID:         strings.TrimSpace(item.GUID),
		Title:        strings.TrimSpace(item.Title),
		Description:  strings.TrimSpace(item.Description),
		Content:      strings.TrimSpace(item.Content),
		PublishedRaw: strings.TrimSpace(item.Published),
		Categories:   item.Categories,
	}

	if item.PublishedParsed != nil {
		e.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		e.Published = *item.UpdatedParsed
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		e.Author = strings.TrimSpace(item.Authors[0].Name)
	}

	e.Links.Primary = strings.TrimSpace(item.Link)
	for _, l := range item.Links {
		l = strings.TrimSpace(l)
		if l != "" && l != e.Links.Primary {
			e.Links.Alternates = append(e.Links.Alternates, l)
		}
	}
	if g := e.GUID; strings.HasPrefix(g, "http://") || strings.HasPrefix(g, "https://") {
		e.Links.PermalinkGUID = g
	}
	// feedburner:origLink points at the publisher URL behind a syndication
	// redirect; it wins over everything.
	if fb, ok := item.Extensions["feedburner"]; ok {
		if orig, ok := fb["origLink"]; ok && len(orig) > 0 {
			e.Links.Orig = strings.TrimSpace(orig[0].Value)
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		e.Image = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			if e.Image == "" {
				e.Image = enc.URL
			}
		}
	}

	return e
}
