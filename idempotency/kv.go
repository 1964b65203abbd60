package idempotency

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/state"
)

const keyPrefix = "idem."

// record is the stored value.
type record struct {
	TaskID    string    `json:"task_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// KVRegistry keeps records in a state.StateStore. Expiry lives in the value
// because JetStream KV has no per-key TTL.
type KVRegistry struct {
	kv   state.StateStore
	opts options
}

// NewKVRegistry creates a registry over kv.
func NewKVRegistry(kv state.StateStore, opts ...Option) *KVRegistry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &KVRegistry{kv: kv, opts: o}
}

func storeKey(key string) string {
	return keyPrefix + Hash(key)
}

// Lookup implements Registry.
func (r *KVRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	raw, err := r.kv.Get(ctx, storeKey(key))
	if stderrors.Is(err, state.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "lookup idempotency key")
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", false, errors.Wrap(err, "decode idempotency record")
	}
	if !rec.ExpiresAt.After(r.opts.now()) || rec.TaskID == "" {
		return "", false, nil
	}
	return rec.TaskID, true, nil
}

// Record implements Registry. Create decides the winner among concurrent
// writers; losers return nil. An expired record is replaced with a
// revision-checked Update so two replacers cannot both succeed.
func (r *KVRegistry) Record(ctx context.Context, key, taskID string, ttl time.Duration) error {
	now := r.opts.now()
	ttl = r.opts.ttl(ttl)
	value, err := json.Marshal(record{
		TaskID:    taskID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return errors.Wrap(err, "encode idempotency record")
	}

	k := storeKey(key)
	err = r.kv.Create(ctx, k, value, ttl)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, state.ErrKeyExists) {
		return errors.Wrap(err, "record idempotency key")
	}

	existing, err := r.kv.GetKeyValue(ctx, k)
	if stderrors.Is(err, state.ErrNotFound) {
		// Swept between Create and Get; try once more.
		if err := r.kv.Create(ctx, k, value, ttl); err != nil && !stderrors.Is(err, state.ErrKeyExists) {
			return errors.Wrap(err, "record idempotency key")
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "record idempotency key")
	}

	var rec record
	if err := json.Unmarshal(existing.Value, &rec); err == nil && rec.ExpiresAt.After(now) {
		return nil
	}
	err = r.kv.Update(ctx, k, value, existing.Revision)
	if err != nil && !stderrors.Is(err, state.ErrRevisionMismatch) {
		return errors.Wrap(err, "replace idempotency key")
	}
	return nil
}

// Sweep implements Registry. Entries that cannot be decoded are removed.
func (r *KVRegistry) Sweep(ctx context.Context, now time.Time) (int64, error) {
	keys, err := r.kv.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return 0, errors.Wrap(err, "list idempotency keys")
	}

	var removed int64
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return removed, errors.Wrap(err, "sweep idempotency keys")
		}
		entry, err := r.kv.GetKeyValue(ctx, k)
		if stderrors.Is(err, state.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, errors.Wrap(err, "sweep idempotency keys")
		}
		var rec record
		if err := json.Unmarshal(entry.Value, &rec); err == nil && !rec.ExpiresAt.Before(now) {
			continue
		}
		// A record replaced since the read is fresh and stays.
		err = r.kv.DeleteRevision(ctx, k, entry.Revision)
		if stderrors.Is(err, state.ErrRevisionMismatch) {
			continue
		}
		if err != nil {
			return removed, errors.Wrap(err, "sweep idempotency keys")
		}
		removed++
	}
	return removed, nil
}
