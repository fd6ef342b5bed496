// Package bus is the daemon's in-process event stream. The connectivity
// watcher, the synchronizer, and the phase machine publish here; subscribers
// pick a kind prefix ("sync." catches every synchronizer event). Delivery is
// best effort: a subscriber that stops draining its channel loses events
// instead of stalling publishers.
package bus

import (
	"strings"
	"sync"
)

// Bus fans events out to prefix-matched subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	kindPrefix string
	ch         chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// Sends never block; a full subscriber channel drops the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.kindPrefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// Subscribe registers interest in events whose Kind starts with kindPrefix.
// bufSize bounds how far the subscriber may fall behind before events are
// dropped. The returned function unsubscribes.
func (b *Bus) Subscribe(kindPrefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{kindPrefix: kindPrefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
