// CLAUDE:SUMMARY Canonical data model for the ingestion pipeline: sources, items, fetch results, run summaries.
// Package model holds the shared data types of the ingestion pipeline.
// Everything downstream of a fetch operates on these shapes, regardless of
// whether the source was a feed or a scrape target.
package model

import (
	"time"

	"github.com/hazyhaar/crewire/classify"
)

// SourceType distinguishes how a source is acquired.
type SourceType string

const (
	SourceFeed   SourceType = "feed"   // RSS/Atom over plain HTTP
	SourceScrape SourceType = "scrape" // no feed; per-domain scraper
)

// Source describes one feed or scrape target. Immutable after startup.
type Source struct {
	URL     string
	Name    string
	Region  string
	Type    SourceType
	Headers map[string]string // optional per-source header overrides
	Timeout time.Duration
	Enabled bool
}

// Item is the canonical record every raw feed entry or scraped article is
// normalized into. Immutable after classification.
type Item struct {
	// ID is a stable hash of the entry GUID (or canonical link when no GUID
	// exists). Re-fetching the same article always yields the same ID.
	ID string `json:"id"`

	// CanonicalLink is the normalized, tracking-stripped absolute URL. Empty
	// only when the entry carried no usable link at all; such items are
	// dedup-keyed by title instead.
	CanonicalLink string `json:"canonical_link"`

	Title        string    `json:"title"`
	Description  string    `json:"description"` // HTML-stripped
	Author       string    `json:"author,omitempty"`
	SourceName   string    `json:"source_name"`
	SourceDomain string    `json:"source_domain"`
	PublishedAt  time.Time `json:"published_at"`
	FetchedAt    time.Time `json:"fetched_at"`
	ImageURL     string    `json:"image_url,omitempty"`
	Regions      []string  `json:"regions,omitempty"`

	Tier     classify.Tier `json:"tier"`
	Score    float64       `json:"score"`
	Category string        `json:"category"`
}

// Result statuses for a per-source fetch.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusBlocked = "blocked" // circuit breaker open, no I/O performed
)

// ResultMeta carries per-source accounting for a run.
type ResultMeta struct {
	SourceName    string        `json:"source_name"`
	RawCount      int           `json:"raw_count"`
	KeptCount     int           `json:"kept_count"`
	FilteredCount int           `json:"filtered_count"`
	Duration      time.Duration `json:"duration_ms"`
}

// FetchResult is the outcome of one source in one run. Feed fetches and
// domain scrapes produce the identical shape.
type FetchResult struct {
	Status string     `json:"status"`
	Items  []Item     `json:"items,omitempty"`
	Err    string     `json:"error,omitempty"`
	Meta   ResultMeta `json:"meta"`
}

// BlockedSource describes a source whose circuit breaker is currently open.
type BlockedSource struct {
	URL          string    `json:"url"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blocked_until"`
	Preview      string    `json:"diagnostic_preview,omitempty"`
}

// Summary aggregates a whole run.
type Summary struct {
	Timestamp        time.Time `json:"timestamp"`
	TotalFetched     int       `json:"total_fetched"`
	TotalKept        int       `json:"total_kept"`
	SourcesProcessed int       `json:"sources_processed"`
	MostRecentItem   *Item     `json:"most_recent_item,omitempty"`
	RecentItems      []Item    `json:"recent_items,omitempty"`
}

// RunResult is everything one pipeline run produces.
type RunResult struct {
	Results []FetchResult   `json:"results"`
	Items   []Item          `json:"items"`
	Summary Summary         `json:"summary"`
	Blocked []BlockedSource `json:"blocked,omitempty"`
}
