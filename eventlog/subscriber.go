package eventlog

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/taskapi/bus"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/task"
)

// Subscriber consumes dispatched events.
type Subscriber interface {
	// Name identifies the subscriber in logs.
	Name() string

	// Handle processes one event. Errors are logged by the dispatcher.
	Handle(ctx context.Context, ev *task.Event) error
}

// funcSubscriber adapts a function to Subscriber.
type funcSubscriber struct {
	name string
	fn   func(ctx context.Context, ev *task.Event) error
}

// SubscriberFunc wraps fn as a named Subscriber.
func SubscriberFunc(name string, fn func(ctx context.Context, ev *task.Event) error) Subscriber {
	return &funcSubscriber{name: name, fn: fn}
}

func (f *funcSubscriber) Name() string { return f.name }

func (f *funcSubscriber) Handle(ctx context.Context, ev *task.Event) error {
	return f.fn(ctx, ev)
}

// LogSubscriber writes one line per event.
type LogSubscriber struct {
	log *logging.Logger
}

// NewLogSubscriber creates a subscriber that logs under the "worker"
// component.
func NewLogSubscriber(log *logging.Logger) *LogSubscriber {
	if log == nil {
		log = logging.Nop()
	}
	return &LogSubscriber{log: log.WithComponent("worker")}
}

// Name implements Subscriber.
func (s *LogSubscriber) Name() string { return "log" }

// Handle implements Subscriber.
func (s *LogSubscriber) Handle(ctx context.Context, ev *task.Event) error {
	s.log.Info("task_event", map[string]interface{}{
		"task_id": ev.TaskID,
		"type":    string(ev.Type),
		"version": ev.TaskVersion,
	})
	return nil
}

// BusSubscriber publishes each event as JSON to bus.EventSubject(type).
type BusSubscriber struct {
	bus bus.MessageBus
}

// NewBusSubscriber creates a subscriber publishing to b.
func NewBusSubscriber(b bus.MessageBus) *BusSubscriber {
	return &BusSubscriber{bus: b}
}

// Name implements Subscriber.
func (s *BusSubscriber) Name() string { return "bus" }

// Handle implements Subscriber.
func (s *BusSubscriber) Handle(ctx context.Context, ev *task.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, bus.EventSubject(string(ev.Type)), data)
}
