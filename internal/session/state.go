// Package session holds the single source of truth for the WhatsApp session
// lifecycle. The store is mutated exclusively through Apply, driven by engine
// events; the HTTP and WebSocket layers only read snapshots.
package session

// State is the session lifecycle tag. Values double as wire status tags.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateQR            State = "qr"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
)

// EventKind identifies an engine lifecycle callback.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventDisconnected  EventKind = "disconnected"
	EventAuthFailure   EventKind = "auth_failure"
	EventLogout        EventKind = "logout"
)

// Event is one engine-driven lifecycle event.
type Event struct {
	Kind EventKind

	// Pairing code fields, set only for EventQR.
	Code     string
	ImageURL string

	// Operator-visible reason, set for EventDisconnected and EventAuthFailure.
	Reason string
}

// transitions is the allowed edge set: current state → event → next state.
// EventLogout is handled separately: it forces disconnected from any state.
// Events with no edge from the current state are dropped; the machine never
// leaves the four-state set.
var transitions = map[State]map[EventKind]State{
	StateDisconnected: {
		EventQR: StateQR,
		// Session restored from the on-disk device store: the engine skips
		// the QR step and reports authenticated directly.
		EventAuthenticated: StateAuthenticated,
	},
	StateQR: {
		EventQR:            StateQR, // engine refreshes the code periodically
		EventAuthenticated: StateAuthenticated,
		EventDisconnected:  StateDisconnected,
		EventAuthFailure:   StateDisconnected,
	},
	StateAuthenticated: {
		EventReady:        StateReady,
		EventDisconnected: StateDisconnected,
		EventAuthFailure:  StateDisconnected,
	},
	StateReady: {
		EventDisconnected: StateDisconnected,
		EventAuthFailure:  StateDisconnected,
	},
}
