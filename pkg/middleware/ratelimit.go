/**
 * @description
 * Rate limiting middleware to prevent abuse and ensure fair resource usage.
 * Uses a simple in-memory token bucket per client IP.
 *
 * @notes
 * - Buckets are per process. The PIN verification limiter, which must hold across
 *   API replicas, is Redis-backed and lives in internal/app.
 */
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter keyed by client.
type RateLimiter struct {
	requests    map[string]*TokenBucket
	mutex       sync.Mutex
	capacity    int
	refillRate  time.Duration
	idleTimeout time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     int
	capacity   int
	lastRefill time.Time
	refillRate time.Duration
	mutex      sync.Mutex
}

// NewRateLimiter creates a limiter that refills `rate` tokens per `window` up to `burst`.
func NewRateLimiter(rate int, burst int, window time.Duration) *RateLimiter {
	if rate < 1 {
		rate = 1
	}
	if burst < rate {
		burst = rate
	}
	refill := window / time.Duration(rate)
	if refill <= 0 {
		refill = time.Millisecond
	}
	rl := &RateLimiter{
		requests:    make(map[string]*TokenBucket),
		capacity:    burst,
		refillRate:  refill,
		idleTimeout: 10 * time.Minute,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	go rl.cleanupExpiredBuckets()

	return rl
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	allowed, _ := rl.take(key)
	return allowed
}

func (rl *RateLimiter) take(key string) (bool, int) {
	rl.mutex.Lock()
	bucket, exists := rl.requests[key]
	if !exists {
		bucket = &TokenBucket{
			tokens:     rl.capacity,
			capacity:   rl.capacity,
			lastRefill: rl.now(),
			refillRate: rl.refillRate,
		}
		rl.requests[key] = bucket
	}
	rl.mutex.Unlock()

	return bucket.consume(rl.now())
}

// Stop ends the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// cleanupExpiredBuckets removes idle buckets to prevent memory leaks
func (rl *RateLimiter) cleanupExpiredBuckets() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(rl.now())
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	for key, bucket := range rl.requests {
		bucket.mutex.Lock()
		if now.Sub(bucket.lastRefill) > rl.idleTimeout {
			delete(rl.requests, key)
		}
		bucket.mutex.Unlock()
	}
}

// consume attempts to take a token and reports the tokens left.
func (tb *TokenBucket) consume(now time.Time) (bool, int) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int(elapsed / tb.refillRate)
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = tb.lastRefill.Add(time.Duration(tokensToAdd) * tb.refillRate)
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, tb.tokens
	}
	return false, 0
}

// RateLimitMiddleware creates a rate limiting middleware allowing requestsPerMinute per client IP.
func RateLimitMiddleware(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	limiter := NewRateLimiter(requestsPerMinute, requestsPerMinute, time.Minute)
	return limiter.Middleware
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(rl.capacity)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining := rl.take(getClientIP(r))
		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.refillRate.Seconds())+1))
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
