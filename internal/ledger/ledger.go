// Package ledger keeps an append-only history of settled client operations.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Outcome is how an operation settled.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected" // refused locally before any request
	OutcomeStale     Outcome = "stale"
)

// Entry is one settled operation.
type Entry struct {
	ID        int64
	Operation string
	Resource  string
	Outcome   Outcome
	Message   string
	RequestID string
	Timestamp time.Time
}

// Ledger appends to and reads from the operation_ledger table.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a ledger over db.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append records an entry. Timestamp defaults to now.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO operation_ledger (operation, resource, outcome, message, request_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Operation, e.Resource, string(e.Outcome), e.Message, e.RequestID, ts.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, operation, resource, outcome, message, request_id, timestamp
		FROM operation_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			outcome   string
			message   sql.NullString
			requestID sql.NullString
			ts        int64
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Resource, &outcome, &message, &requestID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.Message = message.String
		e.RequestID = requestID.String
		e.Timestamp = time.UnixMilli(ts).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries older than retention.
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.ExecContext(ctx, `DELETE FROM operation_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old ledger entries: %w", err)
	}
	return result.RowsAffected()
}

// RunCleanup applies the retention policy every interval until ctx is done.
func (l *Ledger) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Warn().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("Ledger cleanup")
			}
		}
	}
}
