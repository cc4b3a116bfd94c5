package kv

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Manager hands out buckets of one configured backend and expires stale
// entries in the background.
type Manager struct {
	backend string
	db      *sql.DB
	rdb     *redis.Client

	buckets map[string]Bucket
	mu      sync.RWMutex

	cleanupStop    chan struct{}
	cleanupStopped chan struct{}
}

// NewManager creates a manager for backend. db is required for sqlite and
// rdb for redis.
func NewManager(backend string, db *sql.DB, rdb *redis.Client) (*Manager, error) {
	switch backend {
	case BackendMemory:
	case BackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("kv backend %q requires a database", backend)
		}
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("kv backend %q requires a redis client", backend)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	return &Manager{
		backend: backend,
		db:      db,
		rdb:     rdb,
		buckets: make(map[string]Bucket),
	}, nil
}

// Backend returns the configured backend name.
func (m *Manager) Backend() string {
	return m.backend
}

// Bucket returns the bucket called name, creating it on first use.
func (m *Manager) Bucket(name string) Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.buckets[name]; ok {
		return bucket
	}

	var bucket Bucket
	switch m.backend {
	case BackendSQLite:
		bucket = NewSQLiteBucket(m.db, name)
	case BackendRedis:
		bucket = NewRedisBucket(m.rdb, name)
	default:
		bucket = NewMemoryBucket(name)
	}
	m.buckets[name] = bucket

	log.Debug().
		Str("bucket", name).
		Str("backend", m.backend).
		Msg("Created KV bucket")

	return bucket
}

// Ping checks that the backend is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	switch m.backend {
	case BackendSQLite:
		return m.db.PingContext(ctx)
	case BackendRedis:
		return m.rdb.Ping(ctx).Err()
	}
	return nil
}

// StartCleanup periodically removes expired entries until ctx is done or
// StopCleanup is called. Redis expires keys on its own.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if m.backend == BackendRedis || interval <= 0 {
		return
	}

	m.cleanupStop = make(chan struct{})
	m.cleanupStopped = make(chan struct{})

	go func() {
		defer close(m.cleanupStopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.cleanupStop:
				return
			case <-ticker.C:
				m.cleanup(ctx)
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started KV cleanup goroutine")
}

// StopCleanup stops the cleanup goroutine and waits for it to exit.
func (m *Manager) StopCleanup() {
	if m.cleanupStop == nil {
		return
	}
	close(m.cleanupStop)
	<-m.cleanupStopped
	m.cleanupStop = nil
	log.Debug().Msg("Stopped KV cleanup goroutine")
}

func (m *Manager) cleanup(ctx context.Context) {
	if m.backend == BackendSQLite {
		count, err := CleanupExpired(ctx, m.db)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup expired KV entries")
		} else if count > 0 {
			log.Debug().Int64("count", count).Msg("Cleaned up expired KV entries")
		}
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, bucket := range m.buckets {
		if mb, ok := bucket.(*MemoryBucket); ok {
			if cleaned := mb.CleanupExpired(); cleaned > 0 {
				log.Debug().
					Str("bucket", mb.Name()).
					Int("count", cleaned).
					Msg("Cleaned up expired KV entries")
			}
		}
	}
}
