package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_FullConfig(t *testing.T) {
	// WHAT: A complete YAML config parses into the expected structure with
	// declared values winning over defaults.
	// WHY: The config file is the whole operator interface.
	path := writeConfig(t, `
db_path: /var/lib/crewire/db.sqlite
status_addr: ":9090"
interval: 30m
fetch:
  timeout: 20s
  attempts: 4
stealth:
  allowlist: [rebusinessonline.com]
  daily_cap: 2
sources:
  - url: https://wire.example/feed
    name: Industrial Wire
    region: southeast
    headers:
      Referer: https://wire.example/
  - url: https://parked.example/rss
    disabled: true
scrapers:
  - domain: rebusinessonline.com
    strategy: http-with-browser-fallback
    targets:
      - url: https://rebusinessonline.com/category/industrial/
        label: industrial
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interval != 30*time.Minute || cfg.Fetch.Timeout != 20*time.Second || cfg.Fetch.Attempts != 4 {
		t.Errorf("declared values lost: %+v", cfg)
	}
	if cfg.Fetch.Backoff != 500*time.Millisecond {
		t.Errorf("backoff default = %v", cfg.Fetch.Backoff)
	}
	if cfg.Stealth.CacheTTL != 6*time.Hour {
		t.Errorf("cache ttl default = %v", cfg.Stealth.CacheTTL)
	}

	srcs := cfg.feedSources()
	if len(srcs) != 2 {
		t.Fatalf("got %d sources", len(srcs))
	}
	if !srcs[0].Enabled || srcs[1].Enabled {
		t.Errorf("enabled mapping wrong: %+v", srcs)
	}
	if srcs[0].Headers["Referer"] != "https://wire.example/" {
		t.Errorf("headers lost: %+v", srcs[0].Headers)
	}
	if srcs[1].Name != "https://parked.example/rss" {
		t.Errorf("unnamed source should default to its url, got %q", srcs[1].Name)
	}
}

func TestLoadFile_RejectsBadStrategy(t *testing.T) {
	// WHAT: An unknown scraper strategy fails at load time.
	// WHY: A typo must not silently fall back to plain HTTP.
	path := writeConfig(t, `
scrapers:
  - domain: example.com
    strategy: teleport
    targets:
      - url: https://example.com/news
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("want error for unknown strategy")
	}
}

func TestLoadFile_RejectsSourceWithoutURL(t *testing.T) {
	// WHAT: A source with no url is a config error.
	// WHY: Failing at load beats a cryptic fetch error mid-run.
	path := writeConfig(t, `
sources:
  - name: Nameless
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("want error for missing url")
	}
}

func TestLoadFile_RejectsScraperWithoutTargets(t *testing.T) {
	// WHAT: An enabled scraper with no targets is a config error, while a
	// disabled one passes.
	// WHY: A target-less scraper would silently contribute nothing.
	bad := writeConfig(t, `
scrapers:
  - domain: example.com
`)
	if _, err := LoadFile(bad); err == nil {
		t.Fatal("want error for missing targets")
	}

	ok := writeConfig(t, `
scrapers:
  - domain: example.com
    disabled: true
`)
	if _, err := LoadFile(ok); err != nil {
		t.Fatalf("disabled scraper should pass: %v", err)
	}
}
