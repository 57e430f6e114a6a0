package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/errors"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/util"
	"go.uber.org/zap"
)

// WindowCounter counts hits in a fixed window shared by every instance
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisRateLimitMiddleware creates a distributed fixed-window limiter.
// It guards the auth endpoints, so a broken counter rejects the request
// instead of opening them to brute force.
func RedisRateLimitMiddleware(counter WindowCounter, name string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		key := fmt.Sprintf("%s:%s", name, clientIP)
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, left, err := counter.IncrementWindow(ctx, key, window)
		if err != nil {
			logger.Log.Error("Rate limit check failed - rejecting request",
				zap.String("limiter", name),
				logger.WithIP(clientIP),
				zap.Error(err),
			)
			util.RespondWithAPIError(c, errors.ServiceUnavailable("rate limiter"))
			return
		}

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(maxRequests) {
			RecordRateLimitExceeded(name)
			logger.Log.Warn("Rate limit exceeded",
				zap.String("limiter", name),
				logger.WithIP(clientIP),
				zap.Int("max_requests", maxRequests),
				zap.Int64("current_requests", count),
			)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(left.Seconds()))))
			util.RespondWithAPIError(c, errors.RateLimited(""))
			return
		}

		c.Next()
	}
}
