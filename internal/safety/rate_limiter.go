package safety

import (
	"sync"
	"time"
)

// bucket tracks one key's remaining tokens and when they reset, exactly
// the (reset_time, tokens) tuple of original_source's RateLimiter.
type bucket struct {
	resetAt time.Time
	tokens  int
}

// Limiter is a thread-safe, keyed token bucket, grounded on
// original_source/src/rate_limiter.py's RateLimiter class. One Limiter
// instance backs one "operation class" (query, index_creation,
// connection per spec §4.5); keys are tenant IDs, table names, or
// connection identifiers depending on the class.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// NewLimiter builds a Limiter allowing maxRequests per window for each
// distinct key.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets:     make(map[string]*bucket),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// IsAllowed consumes cost tokens from key's bucket, resetting the bucket
// if its window has elapsed. It returns (true, 0) when allowed, or
// (false, retryAfterSeconds) when the bucket is exhausted.
func (l *Limiter) IsAllowed(key string, cost int) (bool, float64) {
	if cost <= 0 {
		cost = 1
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{resetAt: now.Add(l.window), tokens: l.maxRequests}
		l.buckets[key] = b
	}
	if !now.Before(b.resetAt) {
		b.resetAt = now.Add(l.window)
		b.tokens = l.maxRequests
	}

	if b.tokens >= cost {
		b.tokens -= cost
		return true, 0
	}
	return false, b.resetAt.Sub(now).Seconds()
}

// Reset clears a single key's bucket, or every bucket when key is "".
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key == "" {
		l.buckets = make(map[string]*bucket)
		return
	}
	delete(l.buckets, key)
}

// Stats reports the remaining tokens and time-to-reset for key, used by
// the status CLI command.
type Stats struct {
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func (l *Limiter) Stats(key string) Stats {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		return Stats{Remaining: l.maxRequests, ResetIn: l.window, Limit: l.maxRequests}
	}
	return Stats{Remaining: b.tokens, ResetIn: b.resetAt.Sub(now), Limit: l.maxRequests}
}

// LimiterGroup bundles the three rate-limited operation classes the
// spec names: query, index creation, and connection admission.
type LimiterGroup struct {
	Query         *Limiter
	IndexCreation *Limiter
	Connection    *Limiter
}
