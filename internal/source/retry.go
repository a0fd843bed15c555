package source

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/thep200/dothub-crawler/cfg"
	"github.com/thep200/dothub-crawler/internal/limiter"
	"github.com/thep200/dothub-crawler/pkg/log"
)

// Policy retries rate limited and transient failures with exponential
// backoff and 10% jitter.
type Policy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// MaxWait caps a single wait. A rate limit that resets later than this
	// is reported instead of waited out.
	MaxWait time.Duration
}

func NewPolicy(r cfg.Retry) Policy {
	return Policy{
		MaxRetries:        r.MaxRetries,
		InitialBackoff:    r.InitialBackoff,
		MaxBackoff:        r.MaxBackoff,
		BackoffMultiplier: r.BackoffMultiplier,
		MaxWait:           r.MaxWait,
	}
}

// Backoff honours the provider's Retry-After / rate limit reset and falls
// back to the exponential schedule. It matches retryablehttp.Backoff.
func (p Policy) Backoff(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if wait := retryAfter(resp.Header, time.Now()); wait > 0 {
			return wait
		}
	}
	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 2
	}
	backoff := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	jitter := backoff * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

// CheckRetry retries 429, rate limited 403 and 5xx answers plus whatever
// retryablehttp considers a transient transport error. A server asking for
// a longer pause than MaxWait is not retried; its answer goes back to the
// SDK, which turns it into a typed error.
func (p Policy) CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if kindForStatus(resp.StatusCode, resp.Header) != KindRateLimited && resp.StatusCode < 500 {
		return false, nil
	}
	if resp.StatusCode == http.StatusNotImplemented {
		return false, nil
	}
	if wait := retryAfter(resp.Header, time.Now()); p.MaxWait > 0 && wait > p.MaxWait {
		return false, nil
	}
	return true, nil
}

// limitedTransport holds every outgoing attempt to the provider's limiter.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *limiter.RateLimiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// newHTTPClient returns the client every SDK of a provider is built on:
// rate limited attempts retried by go-retryablehttp under p.
func newHTTPClient(name string, p Policy, lim *limiter.RateLimiter, logger log.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: &limitedTransport{next: cleanhttp.DefaultPooledTransport(), limiter: lim},
	}
	rc.Logger = nil
	rc.RetryMax = max(p.MaxRetries, 0)
	rc.RetryWaitMin = p.InitialBackoff
	rc.RetryWaitMax = p.MaxBackoff
	rc.CheckRetry = p.CheckRetry
	rc.Backoff = p.Backoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Warn(req.Context(), "Retrying %s %s (attempt %d/%d)", name, req.URL.Path, attempt, rc.RetryMax)
		}
	}
	return rc.StandardClient()
}

// retryAfter reads Retry-After (seconds) or, when the remaining quota is
// zero, X-RateLimit-Reset (unix seconds).
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if h.Get("X-RateLimit-Remaining") == "0" || h.Get("RateLimit-Remaining") == "0" {
		reset := h.Get("X-RateLimit-Reset")
		if reset == "" {
			reset = h.Get("RateLimit-Reset")
		}
		if ts, err := strconv.ParseInt(strings.TrimSpace(reset), 10, 64); err == nil {
			if wait := time.Unix(ts, 0).Sub(now); wait > 0 {
				return wait + time.Second
			}
			return time.Second
		}
	}
	return 0
}
