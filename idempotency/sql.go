package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/store"
)

// Schema creates the idempotency table.
const Schema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
	key_hash   TEXT NOT NULL,
	task_id    TEXT NOT NULL DEFAULT '',
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_idempotency_keys_hash ON idempotency_keys(key_hash);
CREATE INDEX IF NOT EXISTS idx_idempotency_keys_expires_at ON idempotency_keys(expires_at);
`

// SQLRegistry keeps records in SQLite next to the tasks.
type SQLRegistry struct {
	db   *sql.DB
	opts options
}

// NewSQLRegistry bootstraps the table on db.
func NewSQLRegistry(ctx context.Context, db *sql.DB, opts ...Option) (*SQLRegistry, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to initialize idempotency schema: %w", err)
	}
	return &SQLRegistry{db: db, opts: o}, nil
}

// Lookup implements Registry.
func (r *SQLRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	var (
		taskID  string
		expires int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT task_id, expires_at FROM idempotency_keys WHERE key_hash = ?`, Hash(key),
	).Scan(&taskID, &expires)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.WrapErr(err, "lookup idempotency key")
	}
	if expires <= r.opts.now().UnixNano() || taskID == "" {
		return "", false, nil
	}
	return taskID, true, nil
}

// Record implements Registry. The insert resolves duplicates on the unique
// index: a live row is left untouched and an expired one is overwritten.
// A read-after-write confirms that some row for the hash exists.
func (r *SQLRegistry) Record(ctx context.Context, key, taskID string, ttl time.Duration) error {
	hash := Hash(key)
	now := r.opts.now()
	expires := now.Add(r.opts.ttl(ttl))

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key_hash, task_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key_hash) DO UPDATE SET
			task_id    = excluded.task_id,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
		WHERE idempotency_keys.expires_at <= ?`,
		hash, taskID, expires.UnixNano(), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return store.WrapErr(err, "record idempotency key")
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM idempotency_keys WHERE key_hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.Internal("idempotency record missing after write")
	}
	if err != nil {
		return store.WrapErr(err, "confirm idempotency key")
	}
	return nil
}

// Sweep implements Registry.
func (r *SQLRegistry) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, store.WrapErr(err, "sweep idempotency keys")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapErr(err, "sweep idempotency keys")
	}
	return n, nil
}
