package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteBucket is a persistent bucket stored in the kv_store table.
type SQLiteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLiteBucket creates a bucket over db.
func NewSQLiteBucket(db *sql.DB, name string) *SQLiteBucket {
	return &SQLiteBucket{db: db, name: name}
}

func (b *SQLiteBucket) Name() string       { return b.name }
func (b *SQLiteBucket) IsPersistent() bool { return true }

func (b *SQLiteBucket) Store(ctx context.Context, key string, value any, opts *StoreOptions) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	now := time.Now().UTC()
	var expiresAt *int64
	if exp := expiry(now, opts); !exp.IsZero() {
		unix := exp.UnixMilli()
		expiresAt = &unix
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO kv_store (bucket, key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, b.name, key, string(data), expiresAt, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to store value: %w", err)
	}
	return nil
}

func (b *SQLiteBucket) Get(ctx context.Context, key string, out any) (bool, error) {
	var value string
	var expiresAt sql.NullInt64

	err := b.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM kv_store
		WHERE bucket = ? AND key = ?
	`, b.name, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get value: %w", err)
	}

	if b.expired(expiresAt) {
		_, _ = b.db.ExecContext(ctx, `DELETE FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key)
		return false, nil
	}

	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

func (b *SQLiteBucket) Exists(ctx context.Context, key string) (bool, error) {
	var expiresAt sql.NullInt64

	err := b.db.QueryRowContext(ctx, `
		SELECT expires_at FROM kv_store
		WHERE bucket = ? AND key = ?
	`, b.name, key).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return !b.expired(expiresAt), nil
}

func (b *SQLiteBucket) Delete(ctx context.Context, key string) (bool, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (b *SQLiteBucket) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key FROM kv_store
		WHERE bucket = ? AND (expires_at IS NULL OR expires_at > ?)
	`, b.name, time.Now().UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (b *SQLiteBucket) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv_store WHERE bucket = ?`, b.name); err != nil {
		return fmt.Errorf("failed to clear bucket: %w", err)
	}
	return nil
}

func (b *SQLiteBucket) expired(expiresAt sql.NullInt64) bool {
	return expiresAt.Valid && time.Now().UTC().UnixMilli() > expiresAt.Int64
}

// CleanupExpired removes expired rows of every bucket.
func CleanupExpired(ctx context.Context, db *sql.DB) (int64, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired entries: %w", err)
	}
	return result.RowsAffected()
}
