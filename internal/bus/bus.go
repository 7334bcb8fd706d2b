// Package bus provides the in-process publish/subscribe channel the daemon
// uses to decouple the write path from observers (logging, health).
package bus

import (
	"strings"
	"sync"
)

// Bus fans events out to subscribers by namespace prefix. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Slow subscriber; drop rather than stall the publisher.
		}
	}
}

// Subscribe registers interest in all event kinds starting with prefix.
// The empty prefix matches everything. The returned cancel func removes the
// subscription; the channel is never closed.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
