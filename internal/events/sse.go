package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// This is needed for SSE integration where Huma expects a channel-based select loop.
// Events are dropped when ch is full so a stalled client never backs up the bus;
// clients detect gaps through the per-session sequence number.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- T) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
