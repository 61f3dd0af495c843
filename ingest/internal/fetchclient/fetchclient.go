// CLAUDE:SUMMARY Single HTTP GET with browser-like headers, status-aware error classification, SSRF guard. No retries here.
// Package fetchclient performs a single HTTP GET with a hard timeout and
// classifies the outcome: ok, terminal client error (4xx), retryable server
// error (5xx), or transient network failure. Retry policy lives in retry.go
// and is layered on top.
package fetchclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Result is a successful fetch.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// StatusError is a non-2xx response. Terminal() distinguishes 4xx (never
// retried) from 5xx (retryable).
type StatusError struct {
	Code    int
	Preview string // first bytes of the body, for diagnostics
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetchclient: http %d", e.Code)
}

// Terminal reports whether the status must not be retried.
func (e *StatusError) Terminal() bool {
	return e.Code >= 400 && e.Code < 500
}

// Config configures the client.
type Config struct {
	Timeout  time.Duration // default per-request timeout. Default: 15s.
	MaxBytes int64         // response body cap. Default: 5MB.
	// UserAgent sent when a source supplies no override.
	UserAgent string
	// Validator checks URLs before the request and on every redirect
	// (SSRF prevention). Default: ValidateURL.
	Validator func(string) error
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Validator == nil {
		c.Validator = ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client performs single HTTP GETs.
type Client struct {
	client *http.Client
	cfg    Config
}

// New creates a Client. Redirects are re-validated against the SSRF guard
// and capped at 5 hops.
func New(cfg Config) *Client {
	cfg.defaults()
	validate := cfg.Validator
	return &Client{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		cfg: cfg,
	}
}

// Fetch GETs a URL once. headers override the browser-like defaults key by
// key; timeout overrides the configured default when positive. A non-2xx
// status returns a *StatusError carrying a body preview.
func (c *Client) Fetch(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (*Result, error) {
	if err := c.cfg.Validator(rawURL); err != nil {
		return nil, fmt.Errorf("fetchclient: url blocked: %w", err)
	}

	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetchclient: new request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchclient: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetchclient: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Preview: preview(body, 200)}
	}

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Retryable reports whether err is worth another attempt: network timeouts,
// connection resets, and 5xx responses. 4xx is always terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Terminal()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "EOF") {
		return true
	}
	return false
}

func preview(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}
