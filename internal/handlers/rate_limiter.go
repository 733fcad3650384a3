package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter admits a bounded number of events per key.
type rateLimiter interface {
	Allow(key string) bool
}

// clientLimiter gives every client address its own token bucket holding
// limit tokens and refilling limit tokens per window. Buckets idle for a full
// window are dropped on the next new client.
type clientLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil when limiting is disabled.
func newClientLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientLimiter{
		limit:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		l.dropIdleLocked(now)
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

func (l *clientLimiter) dropIdleLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > l.window {
			delete(l.buckets, key)
		}
	}
}
