// Package ratelimit paces outgoing API requests and interprets server-side
// rate limit responses. It never retries: a 429 is reported to the caller.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds configuration for the request limiter.
type Config struct {
	// RequestsPerSecond is the sustained request rate.
	// Zero or negative disables pacing.
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once.
	// Default: 1
	Burst int

	// Stats is an optional tracker for server-side rate limit events.
	Stats *Stats
}

// Limiter paces requests with a token bucket. A nil *Limiter never waits.
type Limiter struct {
	bucket *rate.Limiter
	stats  *Stats
}

// NewLimiter creates a limiter from cfg. It returns nil when pacing is disabled
// and no stats tracker is set.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 && cfg.Stats == nil {
		return nil
	}

	l := &Limiter{stats: cfg.Stats}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return nil
	}
	return l.bucket.Wait(ctx)
}

// Observe inspects a response and records a rate limit event on 429.
// It returns the parsed Retry-After delay, or nil.
func (l *Limiter) Observe(resp *http.Response) *time.Duration {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	if l != nil && l.stats != nil {
		l.stats.RecordRateLimit()
	}
	return ParseRetryAfter(resp.Header.Get("Retry-After"))
}

// ParseRetryAfter parses the Retry-After header value.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Stats tracks server-side rate limit events.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
