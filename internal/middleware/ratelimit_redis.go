package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore shares fixed-window counters across API replicas.
type RedisRateLimitStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimitStore creates a store using client; keys are prefixed with "ratelimit:".
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: "ratelimit:"}
}

// Allow implements RateLimitStore with INCR and a window expiry set on the first hit.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, error) {
	redisKey := s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	if incr.Val() <= int64(config.RequestsPerWindow) {
		return true, 0, nil
	}

	retryAfter := int(ttl.Val().Round(time.Second) / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}
