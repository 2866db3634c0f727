package suggest

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of provider calls allowed per window.
	DefaultRateLimit = 10
	// DefaultRateWindow is the rolling rate-limit window.
	DefaultRateWindow = time.Minute
)

// RateLimiter counts calls over a rolling window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls []time.Time
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewRateLimiter allows limit calls per rolling window.
func NewRateLimiter(limit int, window time.Duration, options ...RateLimiterOption) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	limiter := &RateLimiter{limit: limit, window: window, now: time.Now}
	for _, option := range options {
		option(limiter)
	}
	return limiter
}

// Allow records a call and reports true when the window has room.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.pruneLocked(now)
	if len(l.calls) >= l.limit {
		return false
	}
	l.calls = append(l.calls, now)
	return true
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	kept := l.calls[:0]
	for _, call := range l.calls {
		if now.Sub(call) < l.window {
			kept = append(kept, call)
		}
	}
	l.calls = kept
}
