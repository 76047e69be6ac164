// rate_limiter.go - Request rate limiting for the settlement daemon.
package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"darkpool/client"
)

// RateLimiter implements a token bucket refilled at a fixed rate.
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a bucket holding maxTokens, refilled with
// refillRate tokens every refillPeriod.
func NewRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refills := int(now.Sub(rl.lastRefill) / rl.refillPeriod)
	if refills > 0 {
		rl.tokens += refills * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// ClientRateLimiter keeps one bucket per client key.
type ClientRateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*RateLimiter
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
}

// NewClientRateLimiter creates a per-client limiter factory.
func NewClientRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
	}
}

// Allow consumes a token from the client's bucket, creating the bucket
// on first sight.
func (crl *ClientRateLimiter) Allow(clientKey string) bool {
	crl.mu.Lock()
	limiter, ok := crl.limiters[clientKey]
	if !ok {
		limiter = NewRateLimiter(crl.maxTokens, crl.refillRate, crl.refillPeriod)
		crl.limiters[clientKey] = limiter
	}
	crl.mu.Unlock()

	return limiter.Allow()
}

// RateLimitMiddleware rejects requests once a client exhausts its
// bucket. A nil limiter disables limiting.
func RateLimitMiddleware(limiter *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, client.ErrorResponse{
				Error: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
