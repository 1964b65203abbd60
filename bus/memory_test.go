package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

// --- Unit Tests ---

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		subject string
		wantErr bool
	}{
		{"tasks", false},
		{"tasks.events", false},
		{"tasks.events.CREATED", false},
		{"tasks.events.*", false},
		{"tasks.>", false},
		{"", true},
		{"tasks..events", true},
		{".tasks", true},
		{"tasks.", true},
		{"tasks.>.CREATED", true},
		{"tasks.ev*", true},
		{"tasks events", true},
	}

	for _, tt := range tests {
		err := ValidateSubject(tt.subject)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSubject(%q) = %v, wantErr %v", tt.subject, err, tt.wantErr)
		}
	}
}

func TestValidatePublishSubject(t *testing.T) {
	if err := ValidatePublishSubject(EventSubject("CREATED")); err != nil {
		t.Errorf("literal subject rejected: %v", err)
	}
	if err := ValidatePublishSubject(AllEventsSubject); err != ErrInvalidSubject {
		t.Errorf("wildcard publish: got %v, want ErrInvalidSubject", err)
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"tasks.events.CREATED", "tasks.events.CREATED", true},
		{"tasks.events.CREATED", "tasks.events.DELETED", false},
		{"tasks.events.*", "tasks.events.DELETED", true},
		{"tasks.events.*", "tasks.events", false},
		{"tasks.events.*", "tasks.events.a.b", false},
		{"tasks.>", "tasks.events.a.b", true},
		{"tasks.>", "tasks", false},
		{"*.events.*", "tasks.events.UPDATED", true},
	}

	for _, tt := range tests {
		if got := MatchSubject(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("MatchSubject(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

func TestEventSubject(t *testing.T) {
	if got := EventSubject("STATUS_CHANGED"); got != "tasks.events.STATUS_CHANGED" {
		t.Errorf("EventSubject = %q", got)
	}
}

func TestMemoryBus_Publish(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	// Publish without subscribers should not error
	if err := bus.Publish(context.Background(), "tasks.events.CREATED", []byte("hello")); err != nil {
		t.Errorf("Publish error: %v", err)
	}
}

func TestMemoryBus_PublishInvalidSubject(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	if err := bus.Publish(context.Background(), "", []byte("hello")); err != ErrInvalidSubject {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestMemoryBus_PublishCanceledContext(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, "tasks.events.CREATED", nil); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Integration Tests ---

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return nil
}

func TestMemoryBus_Subscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, err := bus.Subscribe("tasks.events.CREATED")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	bus.Publish(context.Background(), "tasks.events.CREATED", []byte("hello"))

	msg := receive(t, sub)
	if string(msg.Data) != "hello" {
		t.Errorf("data = %q, want %q", msg.Data, "hello")
	}
	if msg.Subject != "tasks.events.CREATED" {
		t.Errorf("subject = %q", msg.Subject)
	}
}

func TestMemoryBus_WildcardSubscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	all, _ := bus.Subscribe(AllEventsSubject)
	deleted, _ := bus.Subscribe(EventSubject("DELETED"))

	ctx := context.Background()
	bus.Publish(ctx, EventSubject("CREATED"), []byte("1"))
	bus.Publish(ctx, EventSubject("DELETED"), []byte("2"))

	if got := receive(t, all); string(got.Data) != "1" {
		t.Errorf("first wildcard message = %q", got.Data)
	}
	if got := receive(t, all); string(got.Data) != "2" {
		t.Errorf("second wildcard message = %q", got.Data)
	}
	if got := receive(t, deleted); string(got.Data) != "2" {
		t.Errorf("deleted message = %q", got.Data)
	}
	select {
	case msg := <-deleted.Messages():
		t.Errorf("unexpected message %q", msg.Subject)
	default:
	}
}

func TestMemoryBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewMemoryBus(Config{BufferSize: 2})
	defer bus.Close()

	sub, _ := bus.Subscribe("tasks.events.*")
	for i := 0; i < 5; i++ {
		if err := bus.Publish(context.Background(), "tasks.events.UPDATED", nil); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	}

	ms := sub.(*memorySub)
	if got := ms.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
	if got := len(ms.ch); got != 2 {
		t.Errorf("buffered = %d, want 2", got)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())
	defer bus.Close()

	sub, _ := bus.Subscribe("tasks.events.*")
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	// Second call is a no-op.
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe error: %v", err)
	}

	bus.Publish(context.Background(), "tasks.events.CREATED", []byte("x"))
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed channel after unsubscribe")
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(DefaultConfig())

	sub, _ := bus.Subscribe("tasks.events.*")
	if err := bus.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed channel after bus close")
	}
	if err := bus.Publish(context.Background(), "tasks.events.CREATED", nil); err != ErrClosed {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
	if _, err := bus.Subscribe("tasks.events.*"); err != ErrClosed {
		t.Errorf("Subscribe after close = %v, want ErrClosed", err)
	}
	// Unsubscribe after close must not panic.
	sub.Unsubscribe()
}

func TestMemoryBus_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(Config{BufferSize: 1})
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		sub, err := bus.Subscribe("tasks.events.*")
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(context.Background(), "tasks.events.UPDATED", nil)
			}
		}()
		go func(s Subscription) {
			defer wg.Done()
			s.Unsubscribe()
		}(sub)
	}
	wg.Wait()
}
