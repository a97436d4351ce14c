package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter gives every principal a token bucket holding limit tokens
// that refills over period. Routes can cost more than one token so
// expensive calls such as run triggers drain the bucket faster than reads.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	period   time.Duration
	costs    map[string]int
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		period:   period,
		costs:    make(map[string]int),
		now:      time.Now,
	}
}

// WithCost charges cost tokens for requests matching method and the gin
// route pattern.
func (rl *RateLimiter) WithCost(method, route string, cost int) *RateLimiter {
	rl.costs[method+" "+route] = cost
	return rl
}

// Run evicts idle visitors until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cost, ok := rl.costs[c.Request.Method+" "+c.FullPath()]
		if !ok {
			cost = 1
		}

		allowed, retryAfter := rl.take(principalKey(c), cost)
		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
			return
		}

		c.Next()
	}
}

func principalKey(c *gin.Context) string {
	if claims, ok := ClaimsFromContext(c); ok && claims.UserID != "" {
		return "user:" + claims.UserID
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) take(key string, cost int) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.period/time.Duration(rl.limit)), rl.limit)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, cost) {
		return true, 0
	}

	missing := float64(cost) - v.limiter.TokensAt(now)
	return false, time.Duration(missing / float64(v.limiter.Limit()) * float64(time.Second))
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.period {
			delete(rl.visitors, key)
		}
	}
}
