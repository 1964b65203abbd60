package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/task"
)

// DispatcherConfig sizes the dispatcher.
type DispatcherConfig struct {
	// Workers is the number of shards, each with one goroutine.
	// Default: 4
	Workers int

	// QueueSize bounds each shard's queue.
	// Default: 1024
	QueueSize int

	// HandlerTimeout bounds one subscriber call.
	// Default: 5s
	HandlerTimeout time.Duration
}

// DefaultDispatcherConfig returns configuration with sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        4,
		QueueSize:      1024,
		HandlerTimeout: 5 * time.Second,
	}
}

// Dispatcher fans events out to subscribers on sharded worker goroutines.
type Dispatcher struct {
	config DispatcherConfig
	log    *logging.Logger
	shards []chan *task.Event
	wg     sync.WaitGroup

	subMu sync.RWMutex
	subs  []Subscriber

	// mu guards closed against sends on closed shards.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the shard workers.
func NewDispatcher(cfg DispatcherConfig, log *logging.Logger, subs ...Subscriber) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaults.HandlerTimeout
	}
	if log == nil {
		log = logging.Nop()
	}

	d := &Dispatcher{
		config: cfg,
		log:    log.WithComponent("eventlog"),
		shards: make([]chan *task.Event, cfg.Workers),
		subs:   append([]Subscriber(nil), subs...),
	}
	for i := range d.shards {
		d.shards[i] = make(chan *task.Event, cfg.QueueSize)
		d.wg.Add(1)
		go d.run(d.shards[i])
	}
	return d
}

// Subscribe adds a subscriber. It receives events enqueued afterwards.
func (d *Dispatcher) Subscribe(sub Subscriber) {
	d.subMu.Lock()
	d.subs = append(d.subs, sub)
	d.subMu.Unlock()
}

// shardFor routes all events of one task to the same shard.
func (d *Dispatcher) shardFor(taskID string) int {
	return int(xxhash.Sum64String(taskID) % uint64(len(d.shards)))
}

// Enqueue schedules ev for delivery and reports whether it was accepted.
// It never blocks: when the shard is full or the dispatcher is closed the
// event is dropped with a warning.
func (d *Dispatcher) Enqueue(ev *task.Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("event_dropped", map[string]interface{}{
			"task_id": ev.TaskID,
			"type":    string(ev.Type),
			"reason":  "closed",
		})
		return false
	}

	shard := d.shardFor(ev.TaskID)
	select {
	case d.shards[shard] <- ev:
		return true
	default:
		d.log.Warn("event_dropped", map[string]interface{}{
			"task_id": ev.TaskID,
			"type":    string(ev.Type),
			"shard":   shard,
			"reason":  "queue full",
		})
		return false
	}
}

func (d *Dispatcher) run(ch <-chan *task.Event) {
	defer d.wg.Done()
	for ev := range ch {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev *task.Event) {
	d.subMu.RLock()
	subs := d.subs
	d.subMu.RUnlock()

	for _, sub := range subs {
		err := d.handle(sub, ev)
		d.log.EventDispatched(sub.Name(), ev.TaskID, string(ev.Type), err)
	}
}

// handle isolates one subscriber call: a panic becomes an error.
func (d *Dispatcher) handle(sub Subscriber, ev *task.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.config.HandlerTimeout)
	defer cancel()
	return sub.Handle(ctx, ev)
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnShutdown implements shutdown.ShutdownHandler.
func (d *Dispatcher) OnShutdown(ctx context.Context) error {
	return d.Close(ctx)
}
