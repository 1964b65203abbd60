// Package state is a revisioned key-value store. The idempotency registry
// uses it when several replicas must agree on which request created a task.
//
// Two backends exist. NATSStore keeps entries in a JetStream KV bucket and
// is shared across processes; MemoryStore is process-local and backs tests
// and single-node deployments.
//
// Create is put-if-absent, so among concurrent writers of one key exactly
// one succeeds and the rest see ErrKeyExists:
//
//	kv, err := state.NewNATSStore(state.NATSStoreConfig{Conn: nc, Bucket: "taskapi-idempotency"})
//	...
//	if err := kv.Create(ctx, key, value, 0); errors.Is(err, state.ErrKeyExists) {
//		// another writer got there first
//	}
//
// Update compares against the revision returned by GetKeyValue and fails
// with ErrRevisionMismatch when the entry changed in between.
package state
