package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed          = errors.New("limiter closed")
	ErrResourceUnknown = errors.New("unknown resource")
)

// RateLimiter throttles callers per key. Keys are API keys or client
// addresses; each gets its own token bucket.
type RateLimiter interface {
	// Acquire blocks until a token is available for the key.
	// Returns context.Canceled or context.DeadlineExceeded if ctx ends.
	Acquire(ctx context.Context, key string) error

	// TryAcquire takes a token without blocking.
	TryAcquire(key string) bool

	// SetCapacity pins the limit for one key, overriding the default.
	// A non-positive capacity or window removes the override.
	SetCapacity(key string, capacity int, window time.Duration)

	// GetCapacity returns the current state of a key's bucket, or nil if
	// the key has none.
	GetCapacity(key string) *Capacity

	// Close shuts down the limiter.
	Close() error
}

// Capacity describes the bucket of one key.
type Capacity struct {
	// Key is the throttled identity.
	Key string

	// Available is the number of whole tokens left.
	Available int

	// Total is the bucket size (tokens per window).
	Total int

	// Window is the period over which Total tokens refill.
	Window time.Duration

	// RetryAfter is how long until the next token when none are left.
	RetryAfter time.Duration
}

// Config sets the limit applied to keys without an override.
type Config struct {
	// Capacity is the number of requests allowed per Window.
	// Zero means keys without an override are unknown.
	Capacity int

	// Window is the refill period.
	// Default: 1 minute
	Window time.Duration

	// IdleTTL is how long an untouched default bucket is kept before
	// Sweep drops it.
	// Default: 10 minutes
	IdleTTL time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity: 120,
		Window:   time.Minute,
		IdleTTL:  10 * time.Minute,
	}
}
