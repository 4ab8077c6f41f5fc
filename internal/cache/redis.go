package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "cache:"
	redisTagPrefix   = "tag:"
)

// RedisBackend stores entries as plain values and keeps one set per tag
// holding the keys written under it, so tag invalidation is a set sweep.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.rdb.Get(ctx, redisEntryPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, redisEntryPrefix+key, value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, redisTagPrefix+tag, key)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisEntryPrefix + key
	}
	return b.rdb.Del(ctx, prefixed...).Err()
}

func (b *RedisBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		members, err := b.rdb.SMembers(ctx, redisTagPrefix+tag).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		pipe := b.rdb.TxPipeline()
		for _, member := range members {
			pipe.Del(ctx, redisEntryPrefix+member)
		}
		pipe.Del(ctx, redisTagPrefix+tag)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)
