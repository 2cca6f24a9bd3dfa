package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is a thin typed wrapper over the Redis client for the two patterns the
// workflow needs: short-lived response caching and single-flight locks.
type KV struct {
	client *redis.Client
}

// NewKV constructs the wrapper.
func NewKV(client *redis.Client) *KV {
	return &KV{client: client}
}

// Get returns the value and whether the key existed.
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := k.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value with a TTL.
func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.client.Set(ctx, key, value, ttl).Err()
}

// SetNX acquires key as a lease, reporting whether this caller won it.
func (k *KV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return k.client.SetNX(ctx, key, value, ttl).Result()
}

// Del releases a key.
func (k *KV) Del(ctx context.Context, key string) error {
	return k.client.Del(ctx, key).Err()
}
