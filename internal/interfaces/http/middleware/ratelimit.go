package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aurum/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per key with the given burst.
// Buckets idle for longer than ten refill periods are dropped on the next Allow.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	idle := time.Minute
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second) * 10); refill > idle {
			idle = refill
		}
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  idle,
		now:      time.Now,
	}
}

// Allow reports whether one more request from key fits in its bucket
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RetryAfter is the whole number of seconds until key regains a token
func (rl *RateLimiter) RetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok || rl.limit <= 0 {
		return 1
	}
	now := rl.now()
	r := entry.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return int(math.Max(1, math.Ceil(delay.Seconds())))
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
}

// RateLimit limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// RateLimitByKey limits requests per key returned by keyFunc
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	limitHeader := strconv.Itoa(limiter.burst)
	return func(c *gin.Context) {
		key := keyFunc(c)
		c.Header("X-RateLimit-Limit", limitHeader)

		if !limiter.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(limiter.RetryAfter(key)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests, please retry later",
				getRequestID(c),
			))
			return
		}

		c.Next()
	}
}
