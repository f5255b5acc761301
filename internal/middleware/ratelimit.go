// Package middleware provides HTTP middleware for the clustermap server.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// maxBuckets is the maximum number of tracked keys to prevent memory exhaustion.
const maxBuckets = 100_000

// KeyFunc picks the bucket a request draws from. An empty key is not limited.
type KeyFunc func(c *gin.Context) string

// ByClientIP keys requests by client IP. c.ClientIP() is safe from
// X-Forwarded-For spoofing because the router trusts no proxies.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// BySession keys requests by the :id session path parameter, so one
// render engine streaming zoom events cannot starve the other sessions
// behind the same address. Routes without a session are not limited.
func BySession(c *gin.Context) string { return c.Param("id") }

// RateLimiter implements a token bucket rate limiter per key.
type RateLimiter struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	rate    int
	burst   int
	key     KeyFunc
}

// bucket represents one key's token bucket.
type bucket struct {
	tokens     int
	lastFill   time.Time
	ratePerSec int
	burst      int
}

func (b *bucket) allow(now time.Time) bool {
	refill := int(now.Sub(b.lastFill).Seconds() * float64(b.ratePerSec))

	if refill > 0 {
		b.tokens = min(b.tokens+refill, b.burst)
		b.lastFill = now
	}

	if b.tokens > 0 {
		b.tokens--

		return true
	}

	return false
}

// NewRateLimiter creates a RateLimiter with the given requests per second
// and burst size per key. A nil key limits by client IP. A background
// goroutine evicts stale buckets until ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec, burst int, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ByClientIP
	}

	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    ratePerSec,
		burst:   burst,
		key:     key,
	}
	go rl.startCleanup(ctx)

	return rl
}

// startCleanup periodically evicts stale rate-limit buckets.
func (rl *RateLimiter) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	const maxAge = 10 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for k, b := range rl.buckets {
				if now.Sub(b.lastFill) > maxAge {
					delete(rl.buckets, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Handler returns Gin middleware that applies the limit.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		k := rl.key(c)
		if k == "" {
			c.Next()
			return
		}

		now := time.Now()

		rl.mu.Lock()
		b, ok := rl.buckets[k]
		if !ok {
			if len(rl.buckets) >= maxBuckets {
				rl.mu.Unlock()
				respondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")

				return
			}

			b = &bucket{
				tokens:     rl.burst,
				lastFill:   now,
				ratePerSec: rl.rate,
				burst:      rl.burst,
			}
			rl.buckets[k] = b
		}

		allowed := b.allow(now)
		rl.mu.Unlock()

		if !allowed {
			c.Header("Retry-After", "1")
			respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")

			return
		}

		c.Next()
	}
}
