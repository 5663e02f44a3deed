package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// It implements Sink, so the supervisor can publish to every subscriber at once.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Emit publishes a relay event to all subscribers.
func (b *Bus) Emit(e RelayEvent) {
	event.Publish(b.dispatcher, e)
}

// Subscribe registers a handler for relay events.
// Each subscriber receives events in publish order on its own goroutine.
// The per-subscriber queue is unbounded, so handlers must not block; a
// consumer that may stall should use SubscribeToChannel, which drops instead.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler func(RelayEvent)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

// SubscribeSession registers a handler for the events of one session only.
// The same non-blocking rule as Subscribe applies.
func (b *Bus) SubscribeSession(sessionID string, handler func(RelayEvent)) func() {
	return event.Subscribe(b.dispatcher, func(e RelayEvent) {
		if e.SessionID == sessionID {
			handler(e)
		}
	})
}
