package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/bookd/internal/db"
)

type record struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testBucketContract(t *testing.T, b Bucket) {
	ctx := context.Background()

	var out record
	ok, err := b.Get(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Store(ctx, "user", record{ID: "U1", Token: "t"}, nil))
	require.NoError(t, b.Store(ctx, "other", record{ID: "U2"}, nil))

	ok, err = b.Get(ctx, "user", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{ID: "U1", Token: "t"}, out)

	exists, err := b.Exists(ctx, "user")
	require.NoError(t, err)
	assert.True(t, exists)

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"other", "user"}, keys)

	deleted, err := b.Delete(ctx, "user")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = b.Delete(ctx, "user")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, b.Clear(ctx))
	keys, err = b.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryBucket(t *testing.T) {
	testBucketContract(t, NewMemoryBucket("test"))
}

func TestSQLiteBucket(t *testing.T) {
	testBucketContract(t, NewSQLiteBucket(openTestDB(t).DB, "test"))
}

func TestRedisBucket(t *testing.T) {
	_, rdb := newRedis(t)
	testBucketContract(t, NewRedisBucket(rdb, "test"))
}

func TestMemoryBucket_TTL(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket("ttl")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Store(ctx, "k", "v", &StoreOptions{TTL: time.Minute}))
	exists, _ := b.Exists(ctx, "k")
	assert.True(t, exists)

	now = now.Add(2 * time.Minute)
	var out string
	ok, err := b.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Store(ctx, "a", 1, &StoreOptions{TTL: time.Second}))
	require.NoError(t, b.Store(ctx, "b", 2, nil))
	now = now.Add(time.Hour)
	assert.Equal(t, 1, b.CleanupExpired())
}

func TestSQLiteBucket_TTL(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	b := NewSQLiteBucket(database.DB, "ttl")

	require.NoError(t, b.Store(ctx, "short", "v", &StoreOptions{TTL: time.Millisecond}))
	require.NoError(t, b.Store(ctx, "long", "v", nil))
	time.Sleep(20 * time.Millisecond)

	var out string
	ok, err := b.Get(ctx, "short", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Store(ctx, "short2", "v", &StoreOptions{TTL: time.Millisecond}))
	time.Sleep(20 * time.Millisecond)
	n, err := CleanupExpired(ctx, database.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, keys)
}

func TestRedisBucket_TTL(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	b := NewRedisBucket(rdb, "ttl")

	require.NoError(t, b.Store(ctx, "k", "v", &StoreOptions{TTL: time.Minute}))
	assert.True(t, mr.Exists("ttl:k"))

	mr.FastForward(2 * time.Minute)
	exists, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager(t *testing.T) {
	_, err := NewManager("etcd", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewManager(BackendSQLite, nil, nil)
	assert.Error(t, err)

	m, err := NewManager(BackendSQLite, openTestDB(t).DB, nil)
	require.NoError(t, err)
	b := m.Bucket("session")
	assert.Same(t, b, m.Bucket("session"))
	assert.True(t, b.IsPersistent())
	require.NoError(t, m.Ping(context.Background()))

	_, rdb := newRedis(t)
	m, err = NewManager(BackendRedis, nil, rdb)
	require.NoError(t, err)
	assert.IsType(t, &RedisBucket{}, m.Bucket("session"))

	m, err = NewManager(BackendMemory, nil, nil)
	require.NoError(t, err)
	assert.False(t, m.Bucket("session").IsPersistent())
}

func TestManager_CleanupStops(t *testing.T) {
	m, err := NewManager(BackendMemory, nil, nil)
	require.NoError(t, err)

	m.StartCleanup(context.Background(), 5*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	m.StopCleanup()
	m.StopCleanup()
}
