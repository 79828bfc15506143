// Package ratelimit implements a token bucket rate limiter for
// per-host request pacing during extraction.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobtrackerhq/job-ingest/internal/metrics"
)

// Limiter manages per-host rate limits. Hosts without a registered
// limit pass through unthrottled.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new Limiter.
func New() *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter)}
}

// SetHostEvery registers a minimum delay between requests to host.
// A non-positive delay removes the limit.
func (l *Limiter) SetHostEvery(host string, every time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if every <= 0 {
		delete(l.limiters, host)
		return
	}
	l.limiters[host] = rate.NewLimiter(rate.Every(every), 1)
}

// Wait blocks until a token is available for the URL's host, respecting
// the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter := l.limiters[host]
	l.mu.Unlock()
	if limiter == nil {
		return nil
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, delay)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
