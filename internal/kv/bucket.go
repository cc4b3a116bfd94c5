// Package kv provides small key-value buckets with optional TTL backed by
// memory, SQLite or Redis.
package kv

import (
	"context"
	"errors"
	"time"
)

// Backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ErrUnknownBackend is returned for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown kv backend")

// StoreOptions contains optional parameters for Store operations.
type StoreOptions struct {
	TTL time.Duration // zero means no expiry
}

// Bucket is a namespace of JSON-encoded values.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent reports whether values survive a restart.
	IsPersistent() bool

	// Store encodes value as JSON and saves it under key.
	Store(ctx context.Context, key string, value any, opts *StoreOptions) error

	// Get decodes the value under key into out. It reports false when the
	// key is absent or expired; out is left untouched in that case.
	Get(ctx context.Context, key string, out any) (bool, error)

	// Exists reports whether key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns all live keys.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key of the bucket.
	Clear(ctx context.Context) error
}

func expiry(now time.Time, opts *StoreOptions) time.Time {
	if opts == nil || opts.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(opts.TTL)
}
