package ingest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/crewire/ingest/internal/scrape"
	"github.com/hazyhaar/crewire/ingest/model"
)

// Config is the top-level service configuration.
type Config struct {
	DBPath      string        `yaml:"db_path"`
	StatusAddr  string        `yaml:"status_addr"`
	Interval    time.Duration `yaml:"interval"`
	RecentCount int           `yaml:"recent_count"`

	Fetch    FetchConfig     `yaml:"fetch"`
	Stealth  StealthConfig   `yaml:"stealth"`
	Sources  []SourceConfig  `yaml:"sources"`
	Scrapers []ScraperConfig `yaml:"scrapers"`
}

// FetchConfig controls the plain-HTTP acquisition path.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
	Attempts  int           `yaml:"attempts"`
	Backoff   time.Duration `yaml:"backoff"`

	// AllowPrivate disables the private-address guard. Only for dev setups
	// fetching from localhost fixtures.
	AllowPrivate bool `yaml:"allow_private"`
}

// StealthConfig controls the browser path.
type StealthConfig struct {
	Allowlist []string      `yaml:"allowlist"` // domains allowed to use the browser
	DailyCap  int           `yaml:"daily_cap"` // browser sessions per domain per UTC day
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// SourceConfig defines one feed source.
type SourceConfig struct {
	URL      string            `yaml:"url"`
	Name     string            `yaml:"name"`
	Region   string            `yaml:"region"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
	Disabled bool              `yaml:"disabled"`
}

// ScraperConfig defines one feedless domain acquired by scraping.
type ScraperConfig struct {
	Domain      string                  `yaml:"domain"`
	Name        string                  `yaml:"name"`
	Region      string                  `yaml:"region"`
	Strategy    string                  `yaml:"strategy"` // http | browser | http-with-browser-fallback
	Targets     []TargetConfig          `yaml:"targets"`
	Selectors   []scrape.SelectorConfig `yaml:"selectors"`    // overrides the built-in scraper
	URLPatterns []string                `yaml:"url_patterns"` // anchor-fallback gates
	Disabled    bool                    `yaml:"disabled"`
}

// TargetConfig is one page within a scraped domain.
type TargetConfig struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ingest: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "data/crewire.db"
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.RecentCount <= 0 {
		c.RecentCount = 5
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 15 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 5 * 1024 * 1024
	}
	if c.Fetch.Attempts <= 0 {
		c.Fetch.Attempts = 3
	}
	if c.Fetch.Backoff <= 0 {
		c.Fetch.Backoff = 500 * time.Millisecond
	}
	if c.Stealth.DailyCap <= 0 {
		c.Stealth.DailyCap = 3
	}
	if c.Stealth.CacheTTL <= 0 {
		c.Stealth.CacheTTL = 6 * time.Hour
	}
	for i := range c.Sources {
		if c.Sources[i].Name == "" {
			c.Sources[i].Name = c.Sources[i].URL
		}
	}
	for i := range c.Scrapers {
		if c.Scrapers[i].Strategy == "" {
			c.Scrapers[i].Strategy = string(scrape.StrategyHTTP)
		}
		if c.Scrapers[i].Name == "" {
			c.Scrapers[i].Name = c.Scrapers[i].Domain
		}
	}
}

func (c *Config) validate() error {
	for _, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("ingest: source %q has no url", s.Name)
		}
	}
	for _, sc := range c.Scrapers {
		if sc.Domain == "" {
			return fmt.Errorf("ingest: scraper %q has no domain", sc.Name)
		}
		if len(sc.Targets) == 0 && !sc.Disabled {
			return fmt.Errorf("ingest: scraper %q has no targets", sc.Domain)
		}
		switch scrape.Strategy(sc.Strategy) {
		case scrape.StrategyHTTP, scrape.StrategyBrowser, scrape.StrategyHTTPWithBrowser:
		default:
			return fmt.Errorf("ingest: scraper %q: unknown strategy %q", sc.Domain, sc.Strategy)
		}
	}
	return nil
}

// feedSources converts configured sources to the pipeline's model.
func (c *Config) feedSources() []model.Source {
	out := make([]model.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, model.Source{
			URL:     s.URL,
			Name:    s.Name,
			Region:  s.Region,
			Type:    model.SourceFeed,
			Headers: s.Headers,
			Timeout: s.Timeout,
			Enabled: !s.Disabled,
		})
	}
	return out
}
