// Package bus carries committed task events to listeners outside the
// process-local dispatcher.
//
// # Overview
//
// The MessageBus interface is a small pub/sub surface with channel-based
// subscriptions. The event dispatcher publishes every event to
// EventSubject(type), and the websocket stream subscribes to
// AllEventsSubject.
//
// # Available Implementations
//
//   - NATSBus: NATS core pub/sub, for multi-process deployments
//   - MemoryBus: in-process implementation for tests and single-node use
//
// # Subjects
//
//	tasks.events.CREATED
//	tasks.events.UPDATED
//	tasks.events.STATUS_CHANGED
//	tasks.events.DELETED
//
// Subscriptions may use NATS wildcards:
//
//	sub, _ := b.Subscribe(bus.AllEventsSubject)
//	for msg := range sub.Messages() {
//	    // msg.Data is the event JSON
//	}
//
// Delivery is at-most-once. A subscriber whose buffer is full loses
// messages rather than slowing publishers.
package bus
