package state

import (
	"context"
	"testing"
	"time"
)

// These run without a NATS server.

func TestDefaultNATSStoreConfig(t *testing.T) {
	cfg := DefaultNATSStoreConfig()

	if cfg.Bucket != "taskapi-state" {
		t.Errorf("Bucket = %q, want taskapi-state", cfg.Bucket)
	}
	if cfg.History != 1 {
		t.Errorf("History = %d, want 1", cfg.History)
	}
	if cfg.MaxValueSize != 64*1024 {
		t.Errorf("MaxValueSize = %d, want 64KiB", cfg.MaxValueSize)
	}
	if cfg.OpTimeout != 5*time.Second {
		t.Errorf("OpTimeout = %v, want 5s", cfg.OpTimeout)
	}
}

func TestNewNATSStoreRequiresConn(t *testing.T) {
	if _, err := NewNATSStore(NATSStoreConfig{Bucket: "taskapi-idempotency"}); err == nil {
		t.Error("expected an error without a connection")
	}
}

func TestClosedNATSStoreRejectsCalls(t *testing.T) {
	ctx := context.Background()
	s := &NATSStore{config: DefaultNATSStoreConfig()}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.Get(ctx, "idem.a"); err != ErrClosed {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Create(ctx, "idem.a", []byte("v"), 0); err != ErrClosed {
		t.Errorf("Create after Close = %v, want ErrClosed", err)
	}
	if err := s.Update(ctx, "idem.a", []byte("v"), 1); err != ErrClosed {
		t.Errorf("Update after Close = %v, want ErrClosed", err)
	}
	if err := s.DeleteRevision(ctx, "idem.a", 1); err != ErrClosed {
		t.Errorf("DeleteRevision after Close = %v, want ErrClosed", err)
	}
	if _, err := s.Keys(ctx, "idem.*"); err != ErrClosed {
		t.Errorf("Keys after Close = %v, want ErrClosed", err)
	}
}

func TestNATSStoreValidatesBeforeClosedCheck(t *testing.T) {
	ctx := context.Background()
	s := &NATSStore{config: DefaultNATSStoreConfig()}
	s.Close()

	if err := s.Create(ctx, "bad key", nil, 0); err != ErrInvalidKey {
		t.Errorf("Create(bad key) = %v, want ErrInvalidKey", err)
	}
	if err := s.Put(ctx, "k", nil, -time.Second); err != ErrInvalidTTL {
		t.Errorf("Put(negative ttl) = %v, want ErrInvalidTTL", err)
	}
}

var (
	_ StateStore = (*NATSStore)(nil)
	_ StateStore = (*MemoryStore)(nil)
)
