package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Basic Get/Put/Delete
// ============================================================================

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "test.key", []byte("test-value"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "test.key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "test-value" {
		t.Errorf("expected test-value, got %s", got)
	}
}

func TestMemoryStore_ValueIsCopied(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	value := []byte("abc")
	s.Put(ctx, "k", value, 0)
	value[0] = 'x'

	got, _ := s.Get(ctx, "k")
	got[1] = 'y'

	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value was mutated: %s", again)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is not an error
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "short", []byte("v"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if _, err := s.Get(ctx, "short"); err != ErrNotFound {
		t.Errorf("expected expired key to be gone, got %v", err)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "idem.a", []byte("1"), 0)
	s.Put(ctx, "idem.b", []byte("2"), 0)
	s.Put(ctx, "other.c", []byte("3"), 0)

	keys, err := s.Keys(ctx, "idem.*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}
}

// ============================================================================
// Create / Update semantics
// ============================================================================

func TestMemoryStore_Create(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Create(ctx, "k", []byte("first"), 0); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, "k", []byte("second"), 0); err != ErrKeyExists {
		t.Errorf("expected ErrKeyExists, got %v", err)
	}

	got, _ := s.Get(ctx, "k")
	if string(got) != "first" {
		t.Errorf("first writer must win, got %s", got)
	}
}

func TestMemoryStore_CreateOverExpired(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Create(ctx, "k", []byte("old"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if err := s.Create(ctx, "k", []byte("new"), 0); err != nil {
		t.Fatalf("Create over expired key failed: %v", err)
	}
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "k", []byte("v1"), 0)
	kv, err := s.GetKeyValue(ctx, "k")
	if err != nil {
		t.Fatalf("GetKeyValue failed: %v", err)
	}
	if kv.Revision == 0 {
		t.Error("expected non-zero revision")
	}

	if err := s.Update(ctx, "k", []byte("v2"), kv.Revision); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Update(ctx, "k", []byte("v3"), kv.Revision); err != ErrRevisionMismatch {
		t.Errorf("expected ErrRevisionMismatch for stale revision, got %v", err)
	}
	if err := s.Update(ctx, "missing", []byte("v"), 1); err != ErrRevisionMismatch {
		t.Errorf("expected ErrRevisionMismatch for missing key, got %v", err)
	}

	latest, _ := s.GetKeyValue(ctx, "k")
	if string(latest.Value) != "v2" {
		t.Errorf("expected v2, got %s", latest.Value)
	}
	if !latest.Created.Equal(kv.Created) {
		t.Error("update must keep creation time")
	}
}

func TestMemoryStore_DeleteRevision(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.Put(ctx, "k", []byte("v1"), 0)
	old, _ := s.GetKeyValue(ctx, "k")
	s.Put(ctx, "k", []byte("v2"), 0)

	if err := s.DeleteRevision(ctx, "k", old.Revision); err != ErrRevisionMismatch {
		t.Fatalf("expected ErrRevisionMismatch for stale revision, got %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("key must survive a stale delete: %v", err)
	}

	latest, _ := s.GetKeyValue(ctx, "k")
	if err := s.DeleteRevision(ctx, "k", latest.Revision); err != nil {
		t.Fatalf("DeleteRevision failed: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteRevision(ctx, "k", latest.Revision); err != ErrRevisionMismatch {
		t.Errorf("expected ErrRevisionMismatch for missing key, got %v", err)
	}
}

// ============================================================================
// Concurrency
// ============================================================================

func TestMemoryStore_ConcurrentCreate(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Create(context.Background(), "race", []byte("x"), 0); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

// ============================================================================
// Closed store and cancellation
// ============================================================================

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); err != ErrClosed {
		t.Errorf("Get: expected ErrClosed, got %v", err)
	}
	if err := s.Create(ctx, "k", nil, 0); err != ErrClosed {
		t.Errorf("Create: expected ErrClosed, got %v", err)
	}
	if _, err := s.Keys(ctx, "*"); err != ErrClosed {
		t.Errorf("Keys: expected ErrClosed, got %v", err)
	}
	// Double close is safe
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, "k", []byte("v"), 0); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "", []byte("v"), 0); err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if err := s.Create(ctx, "k", []byte("v"), -time.Second); err != ErrInvalidTTL {
		t.Errorf("expected ErrInvalidTTL, got %v", err)
	}
}
