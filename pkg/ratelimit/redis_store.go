package ratelimit

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements KVStore on Redis. Increments are pipelined with
// their EXPIRE so each counter's increment+expiry round-trips once.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) IncrementAndExpire(ctx context.Context, entries ...Entry) error {
	pipe := s.client.Pipeline()
	for _, e := range entries {
		pipe.Incr(ctx, e.Key)
		pipe.Expire(ctx, e.Key, e.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}
