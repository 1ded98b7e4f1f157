package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// generationTTL bounds how long an untouched generation counter lives.
const generationTTL = 24 * time.Hour

var errGenerationMoved = errors.New("cache generation moved")

// RedisStore is a Store shared by all API replicas. Generations live next to
// the values under "cache:gen:<key>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store; keys are prefixed with "cache:".
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "cache:"}
}

func (s *RedisStore) genKey(key string) string {
	return s.prefix + "gen:" + key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Store. The delete and the generation bump run in one
// MULTI so a concurrent SetIfGeneration sees both or neither.
func (s *RedisStore) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, s.prefix+key)
			pipe.Incr(ctx, s.genKey(key))
			pipe.Expire(ctx, s.genKey(key), generationTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache keys: %w", err)
	}
	return nil
}

// Generation implements Store.
func (s *RedisStore) Generation(ctx context.Context, key string) (uint64, error) {
	gen, err := s.client.Get(ctx, s.genKey(key)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation %s: %w", key, err)
	}
	return gen, nil
}

// SetIfGeneration implements Store using WATCH on the generation key.
func (s *RedisStore) SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, gen uint64) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	genKey := s.genKey(key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.prefix+key, value, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
}
