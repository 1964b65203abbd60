// Package ratelimit throttles API callers with per-key token buckets.
//
// Each key (an API key, or the client address when no key is sent) gets
// its own bucket from golang.org/x/time/rate. Buckets are created on first
// use from the default Config and dropped by Sweep once idle:
//
//	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{
//	    Capacity: 120,
//	    Window:   time.Minute,
//	})
//	defer limiter.Close()
//
//	if !limiter.TryAcquire(clientKey) {
//	    retry := limiter.GetCapacity(clientKey).RetryAfter
//	    // reject with 429
//	}
//
// SetCapacity pins a different limit on one key; pinned buckets are never
// swept. Acquire blocks until a token is available or ctx ends.
package ratelimit
