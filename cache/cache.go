// Package cache is the bounded, expiring read cache in front of the task
// store.
//
// Entries are evicted least-recently-used once Size is reached and expire
// after TTL. Writers invalidate synchronously; a value computed before an
// invalidation is never stored after it.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Defaults.
const (
	DefaultSize = 1000
	DefaultTTL  = 5 * time.Minute
)

// Keys.
const (
	taskKeyPrefix  = "task:"
	DefaultListKey = "tasks:default"
)

// TaskKey returns the cache key of one task.
func TaskKey(id string) string {
	return taskKeyPrefix + id
}

// Config sizes a cache.
type Config struct {
	// Size is the maximum number of entries.
	// Default: 1000
	Size int

	// TTL is how long an entry lives.
	// Default: 5m
	TTL time.Duration
}

// Cache maps string keys to values of type V.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	// mu orders stores against invalidations. generation changes on every
	// invalidation; computes that straddle one are returned but not stored.
	mu         sync.Mutex
	generation atomic.Uint64

	// beforeStore runs under mu once the generation check has passed.
	beforeStore func(key string)

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache. Zero config fields take the defaults.
func New[V any](cfg Config) *Cache[V] {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](cfg.Size, nil, cfg.TTL)}
}

// Get returns a cached value.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent misses for the same key share one compute. Errors
// are returned and never cached.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	gen := c.generation.Load()
	flight := key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flight, func() (interface{}, error) {
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.store(key, v, gen)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[V]) store(key string, v V, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		return
	}
	if c.beforeStore != nil {
		c.beforeStore(key)
	}
	c.lru.Add(key, v)
}

// Invalidate removes keys. A compute already past its generation check is
// stored before the removal, never after it.
func (c *Cache[V]) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	for _, k := range keys {
		c.lru.Remove(k)
	}
}

// Purge removes everything.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats returns hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
