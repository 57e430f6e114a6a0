package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	unreadKeyPrefix  = "unread:"
	revokedKeyPrefix = "revoked_token:"
	rateKeyPrefix    = "rate_limit:"

	// UnreadTTL bounds how stale a cached unread count can get if an
	// invalidation is lost
	UnreadTTL = 5 * time.Minute
)

// RedisClient wraps redis.Client with the keys the marketplace uses
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Log.Info("Redis client connected", zap.String("address", opts.Addr))
	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection gracefully
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

// Ping reports whether Redis is reachable
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// GetUnread returns a cached unread count
func (rc *RedisClient) GetUnread(ctx context.Context, userID string) (int64, bool) {
	val, err := rc.client.Get(ctx, unreadKeyPrefix+userID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.WarnWithFields("Unread cache read failed", err, logger.WithUserID(userID))
		}
		metrics.Get().CacheMissesTotal.WithLabelValues("unread").Inc()
		return 0, false
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		metrics.Get().CacheMissesTotal.WithLabelValues("unread").Inc()
		return 0, false
	}
	metrics.Get().CacheHitsTotal.WithLabelValues("unread").Inc()
	return n, true
}

// SetUnread caches an unread count for UnreadTTL
func (rc *RedisClient) SetUnread(ctx context.Context, userID string, count int64) {
	if err := rc.client.Set(ctx, unreadKeyPrefix+userID, count, UnreadTTL).Err(); err != nil {
		logger.WarnWithFields("Unread cache write failed", err, logger.WithUserID(userID))
	}
}

// InvalidateUnread drops cached unread counts
func (rc *RedisClient) InvalidateUnread(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKeyPrefix + id
	}
	if err := rc.client.Del(ctx, keys...).Err(); err != nil {
		logger.WarnWithFields("Unread cache invalidation failed", err, zap.Strings("user_ids", userIDs))
	}
}

// RevokeToken marks a token id as revoked until it would have expired anyway
func (rc *RedisClient) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return rc.client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err()
}

// IsTokenRevoked reports whether RevokeToken was called for the token id
func (rc *RedisClient) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := rc.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementWindow counts a hit for key in a fixed window and returns the
// count so far and the time left in the window
func (rc *RedisClient) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	fullKey := rateKeyPrefix + key
	n, err := rc.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, 0, err
	}
	// First hit opens the window
	if n == 1 {
		if err := rc.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return 0, 0, err
		}
	}
	left, err := rc.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if left < 0 {
		left = window
	}
	return n, left, nil
}
