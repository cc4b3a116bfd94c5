package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryBucket is an in-process bucket. Values do not survive a restart.
type MemoryBucket struct {
	name    string
	entries map[string]*memoryEntry
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (b *MemoryBucket) Name() string       { return b.name }
func (b *MemoryBucket) IsPersistent() bool { return false }

func (b *MemoryBucket) Store(_ context.Context, key string, value any, opts *StoreOptions) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = &memoryEntry{data: data, expiresAt: expiry(b.now(), opts)}
	return nil
}

func (b *MemoryBucket) Get(_ context.Context, key string, out any) (bool, error) {
	data, ok := b.live(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

func (b *MemoryBucket) Exists(_ context.Context, key string) (bool, error) {
	_, ok := b.live(key)
	return ok, nil
}

func (b *MemoryBucket) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return false, nil
	}
	delete(b.entries, key)
	return !entry.expired(b.now()), nil
}

func (b *MemoryBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	keys := make([]string, 0, len(b.entries))
	for key, entry := range b.entries {
		if entry.expired(now) {
			delete(b.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (b *MemoryBucket) Clear(_ context.Context) error {
	b.mu.Lock()
	b.entries = make(map[string]*memoryEntry)
	b.mu.Unlock()
	return nil
}

// CleanupExpired removes expired entries and returns how many were dropped.
func (b *MemoryBucket) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	count := 0
	for key, entry := range b.entries {
		if entry.expired(now) {
			delete(b.entries, key)
			count++
		}
	}
	return count
}

// live returns the encoded value under key, lazily dropping it when expired.
func (b *MemoryBucket) live(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(b.now()) {
		delete(b.entries, key)
		return nil, false
	}
	return entry.data, true
}
