package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresIdempotencyChecker answers LRU misses against the event log.
// A short timeout keeps a slow database from stalling the engine loop;
// the caller treats errors as "not a duplicate".
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db, timeout: 500 * time.Millisecond}
}

func (c *PostgresIdempotencyChecker) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM event_log.events
			WHERE event_type = $1 AND idempotency_key = $2
		)`,
		eventType, idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return exists, nil
}

// RecentKeys returns the newest idempotency keys for warming the LRU
// after a restart, oldest first so insertion order matches event order.
func (c *PostgresIdempotencyChecker) RecentKeys(ctx context.Context, limit int) ([][2]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT event_type, idempotency_key FROM (
			SELECT event_type, idempotency_key, sequence
			FROM event_log.events
			ORDER BY sequence DESC
			LIMIT $1
		) t ORDER BY sequence ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load recent keys: %w", err)
	}
	defer rows.Close()

	var keys [][2]string
	for rows.Next() {
		var et, key string
		if err := rows.Scan(&et, &key); err != nil {
			return nil, err
		}
		keys = append(keys, [2]string{et, key})
	}
	return keys, rows.Err()
}
