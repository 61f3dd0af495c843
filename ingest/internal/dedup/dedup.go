// CLAUDE:SUMMARY Cross-source dedup: first occurrence per normalized link, latest fetch per normalized title for link-less items.
// Package dedup collapses duplicates across all sources of a run. The same
// wire story picked up by two outlets, or a source reached through both its
// feed and a scrape fallback, must survive as exactly one item.
package dedup

import (
	"net/url"
	"strings"

	"github.com/hazyhaar/crewire/ingest/model"
)

// Collapse deduplicates items in a single pass, preserving input order.
// Items with a canonical link are keyed by the case/scheme/trailing-slash
// normalized link: first occurrence wins. Link-less items are keyed by the
// normalized title: the most recently fetched version wins, in the slot of
// the first occurrence.
func Collapse(items []model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	byLink := make(map[string]bool)
	byTitle := make(map[string]int) // title key → index in out

	for _, it := range items {
		if it.CanonicalLink != "" {
			key := linkKey(it.CanonicalLink)
			if byLink[key] {
				continue
			}
			byLink[key] = true
			out = append(out, it)
			continue
		}

		key := titleKey(it.Title)
		if idx, ok := byTitle[key]; ok {
			if it.FetchedAt.After(out[idx].FetchedAt) {
				out[idx] = it
			}
			continue
		}
		byTitle[key] = len(out)
		out = append(out, it)
	}
	return out
}

// linkKey normalizes a canonical link for comparison: scheme dropped (http
// and https serve the same article), host lowercased, trailing slash trimmed.
func linkKey(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return strings.ToLower(link)
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimRight(u.Path, "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func titleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
