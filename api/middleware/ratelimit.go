package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/courtfetch/config"
	"github.com/use-agent/courtfetch/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL      = time.Hour
	limiterSweepEvery   = 5 * time.Minute
	rateLimitedMessage  = "rate limit exceeded, please slow down"
	browserLimitMessage = "the portal browser is busy with this client's earlier requests, retry shortly"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds one token bucket per identity.
type bucketSet struct {
	mu       sync.Mutex
	rps      float64
	burst    int
	limiters map[string]*limiterEntry
}

func newBucketSet(rps float64, burst int) *bucketSet {
	b := &bucketSet{
		rps:      rps,
		burst:    max(burst, 1),
		limiters: make(map[string]*limiterEntry),
	}
	go b.sweep()
	return b
}

func (b *bucketSet) allow(identity string) bool {
	b.mu.Lock()
	entry, ok := b.limiters[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(b.rps), b.burst)}
		b.limiters[identity] = entry
	}
	entry.lastSeen = time.Now()
	b.mu.Unlock()
	return entry.limiter.Allow()
}

// sweep evicts identities idle for longer than limiterIdleTTL.
func (b *bucketSet) sweep() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleTTL)
		b.mu.Lock()
		for id, entry := range b.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(b.limiters, id)
			}
		}
		b.mu.Unlock()
	}
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// for every protected route.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	return limit(newBucketSet(cfg.RequestsPerSecond, cfg.Burst), cfg.RequestsPerSecond, rateLimitedMessage)
}

// BrowserRateLimit returns the stricter bucket for routes that drive the
// single portal browser: captcha reads, case types and case queries. Every
// such call queues behind the session lock, so one client can otherwise
// starve the rest. A non-positive rate disables it.
func BrowserRateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.BrowserRequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	set := newBucketSet(cfg.BrowserRequestsPerSecond, cfg.BrowserBurst)
	return limit(set, cfg.BrowserRequestsPerSecond, browserLimitMessage)
}

func limit(set *bucketSet, rps float64, message string) gin.HandlerFunc {
	retryAfter := strconv.Itoa(retryAfterSeconds(rps))
	return func(c *gin.Context) {
		if set.allow(identity(c)) {
			c.Next()
			return
		}
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Success: false,
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeRateLimited,
				Message: message,
			},
		})
	}
}

// identity prefers the API key set by Auth and falls back to the client IP.
func identity(c *gin.Context) string {
	if key, ok := c.Get("api_key"); ok {
		if s, ok := key.(string); ok {
			return s
		}
	}
	return c.ClientIP()
}

// retryAfterSeconds is the time to earn one token, rounded up.
func retryAfterSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/rps)))
}
