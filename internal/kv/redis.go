package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBucket stores values as plain strings under "<bucket>:<key>". Expiry
// is delegated to Redis.
type RedisBucket struct {
	rdb  *redis.Client
	name string
}

// NewRedisBucket creates a bucket over rdb.
func NewRedisBucket(rdb *redis.Client, name string) *RedisBucket {
	return &RedisBucket{rdb: rdb, name: name}
}

func (b *RedisBucket) Name() string       { return b.name }
func (b *RedisBucket) IsPersistent() bool { return true }

func (b *RedisBucket) key(key string) string {
	return b.name + ":" + key
}

func (b *RedisBucket) Store(ctx context.Context, key string, value any, opts *StoreOptions) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	var ttl time.Duration
	if opts != nil && opts.TTL > 0 {
		ttl = opts.TTL
	}
	if err := b.rdb.Set(ctx, b.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

func (b *RedisBucket) Get(ctx context.Context, key string, out any) (bool, error) {
	data, err := b.rdb.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

func (b *RedisBucket) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBucket) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Del(ctx, b.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBucket) Keys(ctx context.Context) ([]string, error) {
	prefix := b.name + ":"
	var keys []string
	iter := b.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

func (b *RedisBucket) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.key(k)
	}
	if err := b.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to clear bucket: %w", err)
	}
	return nil
}
