package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy decides which responses DoWithRetry retries. The zero value
// never retries.
type RetryPolicy struct {
	Retries int  // attempts after the first
	On429   bool // wait Retry-After, then retry
	On5xx   bool // back off, then retry
	// Backoff is the first 5xx wait, doubled on every further retry. It is
	// also the 429 wait when Retry-After is missing or unparsable.
	Backoff time.Duration
	MaxWait time.Duration // cap on a single wait; 0 = no cap
}

// PanelRetryPolicy is what Xtream panels get with EPGBRIDGE_UPSTREAM_RETRY_429:
// two retries after 429, never after 5xx (a panel in trouble is not hammered).
var PanelRetryPolicy = RetryPolicy{
	Retries: 2,
	On429:   true,
	Backoff: time.Second,
	MaxWait: 60 * time.Second,
}

// NoRetry performs each request exactly once.
var NoRetry = RetryPolicy{}

// DoWithRetry performs req, retrying 429 and 5xx responses as policy allows.
// Other statuses are returned as-is. req must not carry a body. Caller must
// close resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	backoff := policy.Backoff
	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req)
		if err != nil || attempt >= policy.Retries {
			return resp, err
		}
		var wait time.Duration
		switch code := resp.StatusCode; {
		case code == http.StatusTooManyRequests && policy.On429:
			wait = retryAfter(resp.Header.Get("Retry-After"), policy.Backoff)
		case code >= 500 && policy.On5xx:
			wait = backoff
			backoff *= 2
		default:
			return resp, nil
		}
		if policy.MaxWait > 0 && wait > policy.MaxWait {
			wait = policy.MaxWait
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		req = req.Clone(ctx)
	}
}

// retryAfter reads a Retry-After value in seconds or as an HTTP date.
func retryAfter(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if sec, err := strconv.Atoi(v); err == nil {
		if sec < 0 {
			return fallback
		}
		return time.Duration(sec) * time.Second
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return fallback
	}
	if d := time.Until(t); d > 0 {
		return d
	}
	return 0
}
