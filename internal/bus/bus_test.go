package bus

import (
	"context"
	"testing"
	"time"

	"github.com/uteqlabs/wabridge/internal/session"
)

func TestBus_PublishConsume(t *testing.T) {
	b := New()
	b.Publish(session.Event{Kind: session.EventQR, Code: "C1"})

	ev, ok := b.Consume(context.Background())
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != session.EventQR || ev.Code != "C1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestBus_ConsumeCancelled(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := b.Consume(ctx)
	if ok {
		t.Error("expected ok=false on cancelled context")
	}
}

func TestBus_OrderPreserved(t *testing.T) {
	b := New()
	kinds := []session.EventKind{
		session.EventQR, session.EventAuthenticated, session.EventReady, session.EventDisconnected,
	}
	for _, k := range kinds {
		b.Publish(session.Event{Kind: k})
	}
	for i, want := range kinds {
		ev, ok := b.Consume(context.Background())
		if !ok || ev.Kind != want {
			t.Fatalf("event %d: expected %s, got %s (ok=%v)", i, want, ev.Kind, ok)
		}
	}
}

func TestBus_BroadcastReachesAllSubscribers(t *testing.T) {
	b := New()
	got := make(map[string]session.State)
	b.Subscribe("a", func(s session.Snapshot) { got["a"] = s.State })
	b.Subscribe("b", func(s session.Snapshot) { got["b"] = s.State })

	b.Broadcast(session.Snapshot{State: session.StateReady})

	if got["a"] != session.StateReady || got["b"] != session.StateReady {
		t.Errorf("broadcast incomplete: %v", got)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	b.Subscribe("x", func(session.Snapshot) { count++ })
	b.Broadcast(session.Snapshot{State: session.StateQR})
	b.Unsubscribe("x")
	b.Broadcast(session.Snapshot{State: session.StateReady})

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}
