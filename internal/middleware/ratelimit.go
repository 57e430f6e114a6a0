package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/errors"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/util"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures a per-key token bucket limiter
type RateLimitConfig struct {
	Name    string
	Rate    rate.Limit
	Burst   int
	KeyFunc func(*gin.Context) string
	// Limiters idle longer than this are dropped
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key (client IP by default)
type RateLimiter struct {
	config   RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter; zero fields get defaults
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Name == "" {
		config.Name = "api"
	}
	if config.Rate <= 0 {
		config.Rate = 20
	}
	if config.Burst <= 0 {
		config.Burst = int(math.Ceil(float64(config.Rate))) * 2
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Allow consumes one token for key
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastGC) > rl.config.IdleTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.config.IdleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastGC = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.config.Rate, rl.config.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware returns the gin handler
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(rl.config.Rate))))
	return func(c *gin.Context) {
		key := rl.config.KeyFunc(c)
		if rl.Allow(key) {
			c.Next()
			return
		}

		RecordRateLimitExceeded(rl.config.Name)
		logger.Log.Warn("Rate limit exceeded",
			zap.String("limiter", rl.config.Name),
			logger.WithIP(c.ClientIP()),
			zap.String("path", c.Request.URL.Path),
		)
		c.Header("Retry-After", retryAfter)
		util.RespondWithAPIError(c, errors.RateLimited(""))
	}
}

// RateLimit is a shorthand for a per-IP limiter of rps requests per second
func RateLimit(name string, rps float64, burst int) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{Name: name, Rate: rate.Limit(rps), Burst: burst}).Middleware()
}
