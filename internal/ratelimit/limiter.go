// Package ratelimit is the in-process domain.RateLimiter used when the
// detector runs without Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// idleTTL is how long an unused per-key bucket is kept.
const idleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// Limiter keeps one token bucket per key. A bucket holds limit tokens and
// refills at limit per window, which approximates the sliding window of the
// Redis limiter closely enough for a single replica.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

var _ domain.RateLimiter = (*Limiter)(nil)

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket), now: time.Now}
}

// WithClock replaces the clock; for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow reports whether key may make one more request and consumes a token
// when it may. Changing limit or window for a key resets its bucket.
func (l *Limiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:   limit,
			window:  window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops idle buckets, at most once per idleTTL. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleTTL {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleTTL {
			delete(l.buckets, k)
		}
	}
}
