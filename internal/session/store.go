// Package session persists the single authenticated session record.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dokzlo13/bookd/internal/kv"
	"github.com/dokzlo13/bookd/internal/model"
)

// DefaultKey is the well-known key of the session record.
const DefaultKey = "user"

// BucketName is the kv bucket holding the record.
const BucketName = "session"

// Store reads and writes the session record.
type Store struct {
	bucket kv.Bucket
	key    string
	ttl    time.Duration
}

// NewStore creates a store over bucket. An empty key means DefaultKey and a
// zero ttl keeps the record until Clear.
func NewStore(bucket kv.Bucket, key string, ttl time.Duration) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{bucket: bucket, key: key, ttl: ttl}
}

// Key returns the record key.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted session, or nil when none is stored. A record
// that does not identify a user is treated as absent.
func (s *Store) Load(ctx context.Context) (*model.Session, error) {
	var sess model.Session
	ok, err := s.bucket.Get(ctx, s.key, &sess)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !ok || !sess.Valid() {
		return nil, nil
	}
	return &sess, nil
}

// Save persists sess, replacing any previous record.
func (s *Store) Save(ctx context.Context, sess *model.Session) error {
	if !sess.Valid() {
		return fmt.Errorf("refusing to persist session without user id")
	}
	var opts *kv.StoreOptions
	if s.ttl > 0 {
		opts = &kv.StoreOptions{TTL: s.ttl}
	}
	if err := s.bucket.Store(ctx, s.key, sess, opts); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes the record. Clearing an absent record is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.bucket.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
