// Package protocol defines the wire format shared by the bridge server, the
// dashboard's WebSocket/HTTP clients and the wabridge CLI.
package protocol

// Event names pushed from server to WebSocket subscribers.
const (
	EventStateChanged = "state_changed"
)

// Session status tags on the wire. "qr" means a pairing code is waiting to be
// scanned.
const (
	StatusDisconnected  = "disconnected"
	StatusQR            = "qr"
	StatusAuthenticated = "authenticated"
	StatusReady         = "ready"
)

// StateEvent is broadcast to every subscriber on a session transition. The
// same shape is sent once as a snapshot when a subscriber connects, so a
// dashboard opening mid-pairing immediately sees the current QR.
type StateEvent struct {
	Event  string `json:"event"`
	Status string `json:"status"`
	QR     string `json:"qr,omitempty"` // PNG data URL, only while status is "qr"
}
