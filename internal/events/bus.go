package events

import (
	"sync"
)

// Bus is a lightweight in-process pub/sub broker built on channels.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Event][]chan any
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event and returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to subscribers without blocking: a slow
// subscriber's payload is dropped rather than stalling the producer.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Close shuts the bus down and closes every subscriber channel. Publishes
// after Close are silently discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for e, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, e)
	}
}
