// Package store persists the task aggregate in SQLite.
//
// Writes are single autocommit statements. Updates are compare-and-swap on
// the version column, so two writers holding the same expected version
// produce exactly one success and one VERSION_CONFLICT, even across
// processes sharing the database file.
//
// # Usage
//
//	s, err := store.Open(ctx, "tasks.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	created, _ := s.Insert(ctx, &task.Task{Title: "Ship v1"})
//	updated, err := s.Update(ctx, created.ID, created.Version, func(t *task.Task) error {
//	    t.Status = task.StatusInProgress
//	    return nil
//	})
//
// The event log and the SQL idempotency registry share the handle returned
// by DB so that all three tables live in one file.
package store
