// Package eventbus carries simulation events from the timeslot loop to the
// metrics and transport consumers.
package eventbus

import "sync"

// Event is any value published on the bus.
type Event interface{}

// EventBus fans events out to subscribers.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// An evaluation slot publishes a burst of move events on top of the
// timeslot event; the buffer absorbs it so Publish never blocks the loop.
const subscriberBuffer = 16

// Bus is the channel-based EventBus used by the simulation.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// New returns an empty bus.
func New() *Bus { return &Bus{} }

// Publish delivers the event to every subscriber. A subscriber whose
// buffer is full misses the event; delivery never blocks.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe adds a consumer and returns its channel. Subscribing to a
// closed bus yields a closed channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe drops the consumer and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
