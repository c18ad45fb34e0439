// Package realtime fans indexing results out to the outside world: an
// in-process event bus, the websocket API servers, a Centrifugo instance and
// an optional Discord webhook. Nothing in this package may block the
// processor.
package realtime

import (
	"sync"
)

// EventType labels bus events.
type EventType string

const (
	EventSwap  EventType = "swap"
	EventToken EventType = "token"
)

// Event is one broadcast item. Ref is a transaction hash for swaps and a
// token address for launches.
type Event struct {
	Type EventType `json:"type"`
	Ref  string    `json:"ref"`
}

const defaultBusBuffer = 256

// Bus is a bounded broadcast channel. Each subscriber owns a buffered
// channel; when a subscriber falls behind, its oldest event is dropped in
// favor of the new one, so publishers never block and slow consumers only
// lose history, not liveness.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: defaultBusBuffer,
	}
}

// Subscribe returns a receive channel and a cancel function. The channel
// closes on cancel or bus Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, dropping each subscriber's
// oldest buffered event if its channel is full.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		for {
			select {
			case ch <- e:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
