// Package idempotency maps client-supplied idempotency keys to the task
// produced by the first request that carried them.
//
// Raw keys are never stored: every backend keys its records by Hash(key),
// the hex SHA-256 digest. Records expire after a TTL (24 hours unless
// configured); Sweep purges them and is driven periodically by package
// sweeper.
//
// # Backends
//
//   - SQLRegistry: a table in the task database with a unique index on the
//     hash. Concurrent Record calls for one key leave exactly one row and
//     never surface a uniqueness error.
//   - KVRegistry: any state.StateStore (NATS JetStream KV in production).
//     First writer wins through the store's put-if-absent Create.
//
// # Creation protocol
//
//	if id, ok, _ := reg.Lookup(ctx, key); ok {
//	    return store.Get(ctx, id) // fresh read of the existing task
//	}
//	t, err := store.Insert(ctx, newTask)
//	...
//	if err := reg.Record(ctx, key, t.ID, 0); err != nil {
//	    log.Absorbed("idempotency_record", t.ID, err)
//	}
//
// The window between Insert and Record is not protected: two requests that
// race through it may each create a task.
package idempotency
