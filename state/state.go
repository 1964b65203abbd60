package state

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrKeyExists        = errors.New("key already exists")
	ErrRevisionMismatch = errors.New("revision mismatch")
	ErrClosed           = errors.New("store closed")
	ErrInvalidKey       = errors.New("invalid key")
	ErrInvalidTTL       = errors.New("invalid TTL")
)

// MaxKeyLen bounds key length for every backend.
const MaxKeyLen = 1024

// KeyValue is one stored entry. Revision increases on every write to the
// key and is what Update compares against.
type KeyValue struct {
	Key      string
	Value    []byte
	Revision uint64
	Created  time.Time
	Modified time.Time
}

// StateStore is a key-value store that can be shared between processes.
// Absent keys report ErrNotFound; Delete of an absent key is not an error.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetKeyValue(ctx context.Context, key string) (*KeyValue, error)

	// Create writes only if the key is absent and reports ErrKeyExists
	// otherwise. Among concurrent creators exactly one succeeds.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Update writes only if the stored revision equals revision and
	// reports ErrRevisionMismatch otherwise.
	Update(ctx context.Context, key string, value []byte, revision uint64) error

	// Put writes unconditionally. A zero ttl never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// DeleteRevision removes key only while its stored revision equals
	// revision and reports ErrRevisionMismatch otherwise.
	DeleteRevision(ctx context.Context, key string, revision uint64) error

	// Keys lists keys matching pattern, which is either exact or ends in
	// a single "*".
	Keys(ctx context.Context, pattern string) ([]string, error)

	Close() error
}

// ValidateKey accepts the keys JetStream KV accepts: letters, digits and
// "-_/=." with no leading or trailing dot.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLen {
		return ErrInvalidKey
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if !keyChar(key[i]) {
			return ErrInvalidKey
		}
	}
	return nil
}

func keyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-_/=.", c) >= 0
}

// ValidateTTL rejects negative TTLs.
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return nil
}

// MatchPattern reports whether key matches pattern. "*" matches
// everything and a trailing "*" matches any suffix.
func MatchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
