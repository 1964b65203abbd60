package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/store"
	"github.com/vinayprograms/taskapi/task"
)

// Schema creates the event table.
const Schema = `
CREATE TABLE IF NOT EXISTS task_events (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	task_id      TEXT NOT NULL,
	type         TEXT NOT NULL,
	payload      TEXT NOT NULL,
	task_version INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_task_events_created_at ON task_events(created_at);
`

// Log is the durable event log.
type Log struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog bootstraps the event table on db.
func NewLog(ctx context.Context, db *sql.DB, opts ...Option) (*Log, error) {
	l := &Log{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to initialize event schema: %w", err)
	}
	return l, nil
}

// Append records one event for a task at the given task version.
func (l *Log) Append(ctx context.Context, taskID string, typ task.EventType, version int64, payload string) (*task.Event, error) {
	ev := &task.Event{
		ID:          l.newID(),
		TaskID:      taskID,
		Type:        typ,
		Payload:     payload,
		TaskVersion: version,
		CreatedAt:   l.now().UTC(),
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO task_events (id, task_id, type, payload, task_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TaskID, string(ev.Type), ev.Payload, ev.TaskVersion, ev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, store.WrapErr(err, "append event")
	}
	return ev, nil
}

// ListByTask returns one page of a task's events, newest first. Size is
// clamped to [1, task.MaxPageSize]; a negative page is a validation error.
func (l *Log) ListByTask(ctx context.Context, taskID string, page, size int) (task.Page[task.Event], error) {
	if page < 0 {
		return task.Page[task.Event]{}, errors.InvalidField("page", "must not be negative")
	}
	size = task.ClampSize(size)

	var total int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_events WHERE task_id = ?`, taskID).Scan(&total)
	if err != nil {
		return task.Page[task.Event]{}, store.WrapErr(err, "count events")
	}
	offset, ok := task.Offset(page, size)
	if !ok {
		return task.NewPage[task.Event](nil, page, size, total), nil
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, task_id, type, payload, task_version, created_at
		FROM task_events
		WHERE task_id = ?
		ORDER BY task_version DESC, seq DESC
		LIMIT ? OFFSET ?`,
		taskID, size, offset,
	)
	if err != nil {
		return task.Page[task.Event]{}, store.WrapErr(err, "list events")
	}
	defer rows.Close()

	items := make([]task.Event, 0, size)
	for rows.Next() {
		var (
			ev      task.Event
			typ     string
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.TaskID, &typ, &ev.Payload, &ev.TaskVersion, &created); err != nil {
			return task.Page[task.Event]{}, store.WrapErr(err, "list events")
		}
		ev.Type = task.EventType(typ)
		ev.CreatedAt = time.Unix(0, created).UTC()
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return task.Page[task.Event]{}, store.WrapErr(err, "list events")
	}
	return task.NewPage(items, page, size, total), nil
}

// PruneBefore deletes events created before cutoff and returns how many
// were removed.
func (l *Log) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM task_events WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, store.WrapErr(err, "prune events")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapErr(err, "prune events")
	}
	return n, nil
}

// Retention prunes events older than MaxAge when swept.
type Retention struct {
	Log    *Log
	MaxAge time.Duration
}

// Sweep deletes events created before now minus MaxAge. A non-positive
// MaxAge keeps everything.
func (r Retention) Sweep(ctx context.Context, now time.Time) (int64, error) {
	if r.MaxAge <= 0 {
		return 0, nil
	}
	return r.Log.PruneBefore(ctx, now.Add(-r.MaxAge))
}
