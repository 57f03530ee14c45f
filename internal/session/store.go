package session

import (
	"log/slog"
	"sync"
	"time"
)

// PairingPayload is the current QR pairing code. Present iff state is qr.
type PairingPayload struct {
	Code         string
	ImageDataURL string
	IssuedAt     time.Time
}

// Snapshot is a point-in-time read of the store.
type Snapshot struct {
	State      State
	Pairing    *PairingPayload // nil unless State == StateQR
	LastGoodAt time.Time       // when the session last entered ready
	Reason     string          // last disconnect/auth-failure reason
}

// Store serializes all session writes. The bridge's event loop is the sole
// caller of Apply; the mutex covers snapshot reads from other goroutines.
type Store struct {
	mu         sync.Mutex
	state      State
	pairing    *PairingPayload
	lastGoodAt time.Time
	reason     string
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{state: StateDisconnected, now: time.Now}
}

// Apply runs one event through the transition table and returns the resulting
// snapshot plus whether observers should be notified. Events with no edge
// from the current state are dropped with the state unchanged.
func (s *Store) Apply(ev Event) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next State
	if ev.Kind == EventLogout {
		// Forced from any state, even if the engine is stuck mid-handshake.
		next = StateDisconnected
	} else {
		var ok bool
		next, ok = transitions[s.state][ev.Kind]
		if !ok {
			slog.Debug("session: event dropped", "state", string(s.state), "event", string(ev.Kind))
			return s.snapshotLocked(), false
		}
	}

	prev := s.state
	s.state = next

	if next == StateQR {
		s.pairing = &PairingPayload{Code: ev.Code, ImageDataURL: ev.ImageURL, IssuedAt: s.now()}
	} else {
		s.pairing = nil
	}
	if next == StateReady {
		s.lastGoodAt = s.now()
	}
	switch ev.Kind {
	case EventDisconnected, EventAuthFailure, EventLogout:
		s.reason = ev.Reason
	default:
		s.reason = ""
	}

	// A refreshed QR code is a payload change even though the state tag is
	// unchanged; subscribers need the new code.
	changed := prev != next || ev.Kind == EventQR
	if changed {
		if ev.Reason != "" {
			slog.Info("session state", "from", string(prev), "to", string(next), "reason", ev.Reason)
		} else {
			slog.Info("session state", "from", string(prev), "to", string(next))
		}
	}
	return s.snapshotLocked(), changed
}

// State returns the current lifecycle tag.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the full store state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state, LastGoodAt: s.lastGoodAt, Reason: s.reason}
	if s.pairing != nil {
		p := *s.pairing
		snap.Pairing = &p
	}
	return snap
}
