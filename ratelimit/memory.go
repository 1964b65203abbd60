package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket wraps a token bucket with the bookkeeping Sweep needs.
type bucket struct {
	limiter  *rate.Limiter
	capacity int
	window   time.Duration
	lastSeen time.Time
	pinned   bool // set through SetCapacity, never swept
}

func newBucket(capacity int, window time.Duration, now time.Time) *bucket {
	return &bucket{
		limiter:  rate.NewLimiter(rate.Every(window/time.Duration(capacity)), capacity),
		capacity: capacity,
		window:   window,
		lastSeen: now,
	}
}

// MemoryLimiter keeps one token bucket per key in process memory.
// It is safe for concurrent use.
type MemoryLimiter struct {
	config Config

	mu      sync.Mutex
	buckets map[string]*bucket
	closed  bool
	nowFunc func() time.Time // for testing
}

// NewMemoryLimiter creates a limiter. Zero fields of cfg take defaults,
// except Capacity: zero leaves keys without an override unknown.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	defaults := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaults.IdleTTL
	}
	return &MemoryLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
}

// bucketFor returns the key's bucket, creating a default one on first
// use. Callers hold m.mu.
func (m *MemoryLimiter) bucketFor(key string, now time.Time) *bucket {
	b, ok := m.buckets[key]
	if ok {
		return b
	}
	if m.config.Capacity <= 0 {
		return nil
	}
	b = newBucket(m.config.Capacity, m.config.Window, now)
	m.buckets[key] = b
	return b
}

// SetCapacity implements RateLimiter.
func (m *MemoryLimiter) SetCapacity(key string, capacity int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if capacity <= 0 || window <= 0 {
		delete(m.buckets, key)
		return
	}

	now := m.nowFunc()
	if b, ok := m.buckets[key]; ok {
		b.limiter.SetLimitAt(now, rate.Every(window/time.Duration(capacity)))
		b.limiter.SetBurstAt(now, capacity)
		b.capacity = capacity
		b.window = window
		b.pinned = true
		return
	}
	b := newBucket(capacity, window, now)
	b.pinned = true
	m.buckets[key] = b
}

// GetCapacity implements RateLimiter.
func (m *MemoryLimiter) GetCapacity(key string) *Capacity {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		return nil
	}

	tokens := b.limiter.TokensAt(m.nowFunc())
	c := &Capacity{
		Key:       key,
		Available: int(math.Floor(tokens)),
		Total:     b.capacity,
		Window:    b.window,
	}
	if tokens < 1 {
		perToken := float64(b.window) / float64(b.capacity)
		c.RetryAfter = time.Duration(math.Ceil((1 - tokens) * perToken))
	}
	return c
}

// TryAcquire implements RateLimiter.
func (m *MemoryLimiter) TryAcquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	now := m.nowFunc()
	b := m.bucketFor(key, now)
	if b == nil {
		return false
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Acquire implements RateLimiter.
func (m *MemoryLimiter) Acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	now := m.nowFunc()
	b := m.bucketFor(key, now)
	if b == nil {
		m.mu.Unlock()
		return ErrResourceUnknown
	}
	b.lastSeen = now
	lim := b.limiter
	m.mu.Unlock()

	return lim.Wait(ctx)
}

// Sweep drops default buckets idle for longer than IdleTTL. Pinned
// buckets stay. It returns the number removed.
func (m *MemoryLimiter) Sweep(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, b := range m.buckets {
		if b.pinned || now.Sub(b.lastSeen) <= m.config.IdleTTL {
			continue
		}
		delete(m.buckets, key)
		removed++
	}
	return removed, nil
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Close shuts down the limiter.
func (m *MemoryLimiter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.buckets = make(map[string]*bucket)
	return nil
}

// Ensure MemoryLimiter implements RateLimiter.
var _ RateLimiter = (*MemoryLimiter)(nil)
