package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is how long a key stays active when no TTL is given.
const DefaultTTL = 24 * time.Hour

// Registry records which task a key produced.
type Registry interface {
	// Lookup returns the task id recorded for key. ok is false when no
	// record exists, the record has expired or it carries no task id.
	Lookup(ctx context.Context, key string) (taskID string, ok bool, err error)

	// Record stores key -> taskID, expiring after ttl (DefaultTTL when
	// ttl <= 0). If a live record already exists the call is a no-op and
	// returns nil; an expired one is replaced.
	Record(ctx context.Context, key, taskID string, ttl time.Duration) error

	// Sweep deletes records that expired strictly before now and reports
	// how many were removed.
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Hash returns the hex SHA-256 digest of key.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Option configures a registry.
type Option func(*options)

type options struct {
	now        func() time.Time
	defaultTTL time.Duration
}

func defaultOptions() options {
	return options{
		now:        time.Now,
		defaultTTL: DefaultTTL,
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDefaultTTL sets the TTL used when Record is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

func (o options) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return o.defaultTTL
	}
	return ttl
}
