// Package eventlog records committed task transitions and fans them out.
//
// # Log
//
// Log is an append-only SQLite table sharing the task store's database.
// Append runs as its own statement after the task write has committed, so a
// crash between the two loses the event and never the task. ListByTask
// returns a task's history newest first, ordered by the task version the
// event describes.
//
// # Dispatcher
//
// Dispatcher delivers events to subscribers asynchronously. Events are
// routed to one of N shards by hashing the task id, and each shard has a
// single worker, so the events of one task arrive in the order they were
// enqueued:
//
//	d := eventlog.NewDispatcher(eventlog.DispatcherConfig{Workers: 4}, log,
//	    eventlog.NewLogSubscriber(log),
//	    eventlog.NewBusSubscriber(b),
//	)
//	d.Enqueue(ev)        // never blocks; a full shard drops the event
//	d.Close(ctx)         // drains what is queued
//
// A subscriber that returns an error or panics is logged and skipped; it
// never affects the mutation that produced the event or other subscribers.
package eventlog
