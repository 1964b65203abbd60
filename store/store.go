package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/task"
)

// scanBatch bounds the rows held in memory by Scan.
const scanBatch = 256

// Store is the SQLite task store.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// DSN builds the modernc connection string for path with WAL journaling,
// a busy timeout and foreign keys enabled.
func DSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Open opens (creating if needed) the database at path and bootstraps the
// task schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection turns lock contention
	// into queueing inside database/sql.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and bootstraps the task schema.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return WrapErr(err, "ping database")
	}
	return nil
}

// Get returns the task with id or NOT_FOUND.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.TaskNotFound(id)
	}
	if err != nil {
		return nil, WrapErr(err, "load task")
	}
	return t, nil
}

// Exists reports whether a task with id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, WrapErr(err, "check task")
	}
	return true, nil
}

// Insert stores a new task. It assigns the identifier, sets version 0 and
// stamps created and updated time; the caller's value is not modified.
func (s *Store) Insert(ctx context.Context, in *task.Task) (*task.Task, error) {
	t := in.Clone()
	now := s.now()
	t.ID = s.newID()
	t.Version = 0
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Tags == nil {
		t.Tags = []string{}
	}

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, errors.Wrap(err, "encode tags")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullableTime(t.DueDate), t.Assignee, string(tags), t.Version,
		t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isConstraint(err) {
			return nil, errors.Conflict("task identifier already exists", errors.WithTaskID(t.ID), errors.WithCause(err))
		}
		return nil, WrapErr(err, "insert task")
	}
	return t, nil
}

// Update applies mutate to the stored task if its version equals
// expectedVersion. The mutator receives a copy; identity, creation time and
// version are restored after it runs. On success the version is incremented
// by exactly one and updated time is refreshed.
//
// The write is conditional on the version still matching, so a writer that
// raced past the read check still loses with VERSION_CONFLICT.
func (s *Store) Update(ctx context.Context, id string, expectedVersion int64, mutate func(*task.Task) error) (*task.Task, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Version != expectedVersion {
		return nil, errors.VersionConflict(id, expectedVersion, cur.Version)
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()
	if next.Tags == nil {
		next.Tags = []string{}
	}

	tags, err := json.Marshal(next.Tags)
	if err != nil {
		return nil, errors.Wrap(err, "encode tags")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?, due_date = ?,
		    assignee = ?, tags = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.Title, next.Description, string(next.Status), string(next.Priority),
		nullableTime(next.DueDate), next.Assignee, string(tags), next.Version,
		next.UpdatedAt.UnixNano(), id, expectedVersion,
	)
	if err != nil {
		return nil, WrapErr(err, "update task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, WrapErr(err, "update task")
	}
	if n == 0 {
		latest, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, errors.VersionConflict(id, expectedVersion, latest.Version)
	}
	return next, nil
}

// Delete removes the task and returns the row as it was stored.
// A missing task reports NOT_FOUND, including on a repeated delete.
func (s *Store) Delete(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM tasks WHERE id = ? RETURNING `+taskColumns, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.TaskNotFound(id)
	}
	if err != nil {
		return nil, WrapErr(err, "delete task")
	}
	return t, nil
}

// ListByIDs returns the stored tasks for ids in the order given. Missing
// identifiers are skipped.
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]*task.Task, error) {
	if len(ids) == 0 {
		return []*task.Task{}, nil
	}

	byID := make(map[string]*task.Task, len(ids))
	for start := 0; start < len(ids); start += scanBatch {
		end := start + scanBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, WrapErr(err, "list tasks")
		}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return nil, WrapErr(err, "list tasks")
			}
			byID[t.ID] = t
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, WrapErr(err, "list tasks")
		}
	}

	out := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Scan calls fn for every stored task in identifier order. Rows are read in
// batches and fn runs with no open cursor, so it may use the store.
func (s *Store) Scan(ctx context.Context, fn func(*task.Task) error) error {
	after := ""
	for {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id > ? ORDER BY id LIMIT ?`, after, scanBatch)
		if err != nil {
			return WrapErr(err, "scan tasks")
		}
		var batch []*task.Task
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return WrapErr(err, "scan tasks")
			}
			batch = append(batch, t)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return WrapErr(err, "scan tasks")
		}

		for _, t := range batch {
			if err := fn(t); err != nil {
				return err
			}
		}
		if len(batch) < scanBatch {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(r rowScanner) (*task.Task, error) {
	var (
		t                task.Task
		status, priority string
		due              sql.NullInt64
		tags             string
		created, updated int64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &due,
		&t.Assignee, &tags, &t.Version, &created, &updated); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	if due.Valid {
		d := time.Unix(0, due.Int64).UTC()
		t.DueDate = &d
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", t.ID, err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return &t, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

// WrapErr converts a database error into the task error taxonomy. Busy and
// locked databases are UNAVAILABLE; context errors keep their meaning;
// anything else is INTERNAL_ERROR.
func WrapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if stderrors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.WrapWithCode(err, errors.ErrCodeUnavailable, msg)
		}
	}
	return errors.Wrap(err, msg)
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if stderrors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
