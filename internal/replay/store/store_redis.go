package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarkerStore implements the dedup fence on Redis. SetNX is a single
// atomic check-and-set, so concurrent duplicate deliveries for the same
// subject race on the server and exactly one wins.
type RedisMarkerStore struct {
	client redis.Cmdable
}

// NewRedisMarkerStore creates a marker store backed by the given client.
func NewRedisMarkerStore(client redis.Cmdable) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

func (s *RedisMarkerStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisMarkerStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
