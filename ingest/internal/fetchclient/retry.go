package fetchclient

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	Attempts int           // total attempts including the first. Default: 3.
	Base     time.Duration // backoff is Base * 2^attempt. Default: 500ms.
	Logger   *slog.Logger
	// sleep is injectable for tests.
	sleep func(context.Context, time.Duration) error
}

func (rc *RetryConfig) defaults() {
	if rc.Attempts <= 0 {
		rc.Attempts = 3
	}
	if rc.Base <= 0 {
		rc.Base = 500 * time.Millisecond
	}
	if rc.Logger == nil {
		rc.Logger = slog.Default()
	}
	if rc.sleep == nil {
		rc.sleep = ctxSleep
	}
}

// FetchRetry wraps Fetch with bounded exponential backoff. Only timeouts and
// 5xx responses are retried; a 4xx returns immediately after one attempt.
func (c *Client) FetchRetry(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration, rc RetryConfig) (*Result, error) {
	rc.defaults()

	var lastErr error
	for attempt := 0; attempt < rc.Attempts; attempt++ {
		res, err := c.Fetch(ctx, rawURL, headers, timeout)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !Retryable(err) {
			return nil, lastErr
		}
		if attempt == rc.Attempts-1 {
			break
		}

		wait := rc.Base * (1 << uint(attempt))
		rc.Logger.Warn("fetchclient: retrying",
			"url", rawURL,
			"attempt", attempt+1,
			"max_attempts", rc.Attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)
		if err := rc.sleep(ctx, wait); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
