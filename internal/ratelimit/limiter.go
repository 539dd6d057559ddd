// Package ratelimit limits how often a client may create editing sessions.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/ruledit/internal/clock"
)

// Limiter manages fixed-window rate limits for multiple keys.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	limiters map[string]*bucket
}

// bucket holds the tokens left in the current window.
type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter allows limit requests per key in each interval. A limit of zero
// or less disables limiting.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clock.Or(clk),
		limiters: make(map[string]*bucket),
	}
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l.limit > 0
}

// Allow takes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.limiters[key]
	if !exists {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.limiters[key] = b
	}

	// Refill once the window has passed.
	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Reset clears the rate limit for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// CleanupExpired removes buckets whose window started more than maxAge ago.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.limiters {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.limiters, key)
		}
	}
}

// RunCleanup removes expired buckets every interval until ctx is done.
func (l *Limiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CleanupExpired(maxAge)
		}
	}
}
