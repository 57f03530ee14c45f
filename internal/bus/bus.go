// Package bus carries engine lifecycle events to the session store's single
// consumer and fans applied snapshots out to subscribers (WebSocket clients,
// the console QR printer, logout waiters).
package bus

import (
	"context"
	"sync"

	"github.com/uteqlabs/wabridge/internal/session"
)

// SnapshotHandler receives store snapshots after each applied transition.
// Handlers must be non-blocking; a slow subscriber drops frames, it does not
// hold up the others.
type SnapshotHandler func(session.Snapshot)

// Bus is the bridge's internal event channel. Exactly one goroutine consumes
// events, which preserves the store's single-writer invariant no matter how
// many engine callbacks publish concurrently.
type Bus struct {
	events chan session.Event

	subMu       sync.RWMutex
	subscribers map[string]SnapshotHandler
}

func New() *Bus {
	return &Bus{
		events:      make(chan session.Event, 64),
		subscribers: make(map[string]SnapshotHandler),
	}
}

// Publish queues a lifecycle event from the engine adapter.
func (b *Bus) Publish(ev session.Event) {
	b.events <- ev
}

// Consume blocks until an event is available or ctx is cancelled.
func (b *Bus) Consume(ctx context.Context) (session.Event, bool) {
	select {
	case ev := <-b.events:
		return ev, true
	case <-ctx.Done():
		return session.Event{}, false
	}
}

// Subscribe registers a snapshot handler under id. Re-subscribing with the
// same id replaces the previous handler.
func (b *Bus) Subscribe(id string, handler SnapshotHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers a snapshot to all current subscribers.
func (b *Bus) Broadcast(snap session.Snapshot) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for _, handler := range b.subscribers {
		handler(snap)
	}
}
