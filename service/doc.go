// Package service implements the task operations on top of the store,
// idempotency registry, event log, query engine and read cache.
//
// Every mutation of one task runs under a per-task lock and follows the same
// sequence: validate, read, check the expected version, write with a
// conditional statement, update the search index, invalidate cached reads,
// append the event and hand it to the dispatcher. Once the version check
// has passed the sequence ignores caller cancellation, so an accepted write
// is never half applied. Failures after the write (index, event append,
// idempotency record) are logged and absorbed; the committed task is
// returned.
//
// Conflicts are reported as VERSION_CONFLICT and never retried here.
package service
