package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dwdwow/morpho-go/config"
)

// Redis is a Store backed by Redis. Values are msgpack encoded and expire
// server-side.
type Redis[V any] struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisClient connects to the configured Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// NewRedis creates a store whose keys are namespaced by prefix
func NewRedis[V any](rdb *goredis.Client, prefix string) *Redis[V] {
	return &Redis[V]{rdb: rdb, prefix: prefix}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var v V
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, r.prefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
