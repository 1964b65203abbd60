package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeNow returns a settable clock for the limiter.
func fakeNow(m *MemoryLimiter) func(d time.Duration) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
}

func TestMemoryLimiter_DefaultBucket(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 3, Window: time.Minute})
	defer limiter.Close()
	fakeNow(limiter)

	if limiter.GetCapacity("client-a") != nil {
		t.Fatal("expected no bucket before first use")
	}

	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire("client-a") {
			t.Errorf("expected TryAcquire to succeed on attempt %d", i+1)
		}
	}
	if limiter.TryAcquire("client-a") {
		t.Error("expected TryAcquire to fail after exhausting capacity")
	}

	cap := limiter.GetCapacity("client-a")
	if cap == nil {
		t.Fatal("expected capacity, got nil")
	}
	if cap.Total != 3 {
		t.Errorf("expected total 3, got %d", cap.Total)
	}
	if cap.Available != 0 {
		t.Errorf("expected available 0, got %d", cap.Available)
	}
	if cap.RetryAfter <= 0 || cap.RetryAfter > 20*time.Second {
		t.Errorf("expected retry within one token period, got %v", cap.RetryAfter)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 1, Window: time.Minute})
	defer limiter.Close()
	fakeNow(limiter)

	if !limiter.TryAcquire("a") {
		t.Fatal("expected first token for a")
	}
	if limiter.TryAcquire("a") {
		t.Error("expected a to be throttled")
	}
	if !limiter.TryAcquire("b") {
		t.Error("expected b to have its own bucket")
	}
}

func TestMemoryLimiter_Refill(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 2, Window: time.Minute})
	defer limiter.Close()
	advance := fakeNow(limiter)

	limiter.TryAcquire("k")
	limiter.TryAcquire("k")
	if limiter.TryAcquire("k") {
		t.Fatal("expected bucket to be empty")
	}

	advance(31 * time.Second)
	if !limiter.TryAcquire("k") {
		t.Error("expected one token after half a window")
	}
	if limiter.TryAcquire("k") {
		t.Error("expected only one token after half a window")
	}

	advance(2 * time.Minute)
	if got := limiter.GetCapacity("k").Available; got != 2 {
		t.Errorf("expected refill capped at 2, got %d", got)
	}
}

func TestMemoryLimiter_NoDefaultMeansUnknown(t *testing.T) {
	limiter := NewMemoryLimiter(Config{})
	defer limiter.Close()

	if limiter.TryAcquire("anyone") {
		t.Error("expected unknown key to be rejected")
	}
	if err := limiter.Acquire(context.Background(), "anyone"); err != ErrResourceUnknown {
		t.Errorf("expected ErrResourceUnknown, got %v", err)
	}
}

func TestMemoryLimiter_SetCapacity(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 1, Window: time.Minute})
	defer limiter.Close()
	fakeNow(limiter)

	limiter.SetCapacity("vip", 10, time.Minute)
	cap := limiter.GetCapacity("vip")
	if cap == nil || cap.Total != 10 || cap.Available != 10 {
		t.Fatalf("expected 10/10, got %+v", cap)
	}
	if cap.Window != time.Minute {
		t.Errorf("expected window 1m, got %v", cap.Window)
	}

	// Resize an existing default bucket.
	limiter.TryAcquire("grow")
	limiter.SetCapacity("grow", 5, time.Minute)
	if got := limiter.GetCapacity("grow").Total; got != 5 {
		t.Errorf("expected total 5, got %d", got)
	}

	limiter.SetCapacity("vip", 0, time.Minute)
	if limiter.GetCapacity("vip") != nil {
		t.Error("expected override removed")
	}
}

func TestMemoryLimiter_Acquire(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 1, Window: 50 * time.Millisecond})
	defer limiter.Close()

	ctx := context.Background()
	if err := limiter.Acquire(ctx, "k"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	if err := limiter.Acquire(ctx, "k"); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected acquire to wait for refill, took %v", elapsed)
	}
}

func TestMemoryLimiter_AcquireContextCancel(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 1, Window: time.Hour})
	defer limiter.Close()

	limiter.TryAcquire("k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(ctx, "k"); err == nil {
		t.Error("expected acquire to fail when the wait exceeds the deadline")
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 5, Window: time.Minute, IdleTTL: time.Minute})
	defer limiter.Close()
	advance := fakeNow(limiter)

	limiter.TryAcquire("idle")
	limiter.SetCapacity("pinned", 5, time.Minute)
	advance(90 * time.Second)
	limiter.TryAcquire("active")

	n, err := limiter.Sweep(context.Background(), limiter.nowFunc())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 bucket swept, got %d", n)
	}
	if limiter.GetCapacity("idle") != nil {
		t.Error("expected idle bucket dropped")
	}
	if limiter.GetCapacity("pinned") == nil {
		t.Error("expected pinned bucket kept")
	}
	if limiter.Len() != 2 {
		t.Errorf("expected 2 buckets left, got %d", limiter.Len())
	}
}

func TestMemoryLimiter_Close(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 5})

	if err := limiter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := limiter.Close(); err != ErrClosed {
		t.Errorf("expected ErrClosed on second close, got %v", err)
	}
	if limiter.TryAcquire("k") {
		t.Error("expected TryAcquire to fail after close")
	}
	if err := limiter.Acquire(context.Background(), "k"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryLimiter(Config{Capacity: 50, Window: time.Hour})
	defer limiter.Close()
	fakeNow(limiter)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire("shared") {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 50 {
		t.Errorf("expected exactly 50 grants, got %d", got)
	}
}
