package github

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy bounds request retries and computes waits. The clock and sleep
// functions are injectable so tests can simulate time without real delays.
type RetryPolicy struct {
	MaxAttempts          int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	DefaultRateLimitWait time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:          3,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		DefaultRateLimitWait: 60 * time.Second,
		now:                  time.Now,
		sleep:                sleepContext,
	}
}

// WithClock replaces the wall clock and sleeper, for tests.
func (p RetryPolicy) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) RetryPolicy {
	p.now = now
	p.sleep = sleep
	return p
}

// Backoff waits before retry number attempt (1-based). The delay doubles
// per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(ctx context.Context, attempt int) error {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return p.sleep(ctx, d)
}

// Wait sleeps for d, aborting early if ctx is cancelled.
func (p RetryPolicy) Wait(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// Now returns the policy's current time.
func (p RetryPolicy) Now() time.Time { return p.now() }

// RateLimitWait computes how long to hold off after a rate-limited response:
// Retry-After (seconds) when present, else X-RateLimit-Reset (epoch seconds).
// Falls back to the default wait when neither header parses.
func (p RetryPolicy) RateLimitWait(h http.Header) time.Duration {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	reset := h.Get("X-RateLimit-Reset")
	if reset == "" {
		return p.DefaultRateLimitWait
	}
	epoch, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return p.DefaultRateLimitWait
	}
	d := time.Unix(epoch, 0).Sub(p.now())
	if d <= 0 {
		return p.DefaultRateLimitWait
	}
	return d
}

// isRateLimited reports whether a response is GitHub rate limiting rather
// than a permissions failure. The X-RateLimit-* headers ride on every
// response, so their mere presence on a 403 means nothing; only an
// exhausted budget, a secondary-limit Retry-After, or a 429 count.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("Retry-After") != "" {
		return true
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
