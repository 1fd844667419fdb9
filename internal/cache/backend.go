// Package cache holds the ephemeral projections the event path consults
// before touching the relational store: identity lookups for devices and
// people, and the per-person dedup token. All of it is strictly best-effort;
// a dead backend degrades to cache misses, never to errors.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Backend.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Backend is the minimal string KV surface the caches need.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a redis client as a Backend. The client is owned by
// the caller; construct it once at startup and share the handle.
func NewRedisBackend(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (b *redisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}
