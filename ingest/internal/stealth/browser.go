package stealth

import (
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Browser owns one headless Chrome instance, launched lazily on first use
// and shared across all stealth fetches. Launch costs seconds; the instance
// must outlive a single fetch.
type Browser struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowser returns an unlaunched Browser.
func NewBrowser() *Browser {
	return &Browser{}
}

func (b *Browser) get() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("disable-infobars")
	ws, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("stealth: launch browser: %w", err)
	}

	br := rod.New().ControlURL(ws)
	if err := br.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("stealth: connect browser: %w", err)
	}

	b.launcher = l
	b.browser = br
	return br, nil
}

// Close shuts the browser down. Safe to call when never launched.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	b.browser = nil
	b.launcher = nil
	return err
}
