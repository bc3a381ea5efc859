package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/timeutil"
	"github.com/jengzang/fleet-tracking-go/pkg/response"
)

// RateLimiter allows limit requests per key in each fixed window
type RateLimiter struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	limit    int
	window   time.Duration
	counters map[string]*windowCounter
	sweptAt  time.Time
}

type windowCounter struct {
	start time.Time
	count int
}

// NewRateLimiter creates a new rate limiter. A limit of 0 allows everything.
func NewRateLimiter(limit int, window time.Duration, clock timeutil.Clock) *RateLimiter {
	return &RateLimiter{
		clock:    clock,
		limit:    limit,
		window:   window,
		counters: make(map[string]*windowCounter),
		sweptAt:  clock.Now(),
	}
}

// Allow records a request for key and reports whether it is within the limit
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.sweepLocked(now)

	wc, ok := rl.counters[key]
	if !ok || now.Sub(wc.start) >= rl.window {
		rl.counters[key] = &windowCounter{start: now, count: 1}
		return true
	}
	if wc.count >= rl.limit {
		return false
	}
	wc.count++
	return true
}

// sweepLocked drops expired counters at most once per window
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.sweptAt) < rl.window {
		return
	}
	for key, wc := range rl.counters {
		if now.Sub(wc.start) >= rl.window {
			delete(rl.counters, key)
		}
	}
	rl.sweptAt = now
}

// Tracked returns how many keys hold a live counter
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counters)
}

// RateLimit middleware limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.Abort(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}
