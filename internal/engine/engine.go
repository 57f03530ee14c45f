// Package engine wraps the WhatsApp automation library behind a small
// capability interface: connect, send, log out. Lifecycle callbacks are
// converted into session events so the state machine never depends on
// whatsmeow types and never sees a raw engine panic.
package engine

import (
	"context"
	"errors"

	"github.com/uteqlabs/wabridge/internal/session"
)

// ErrInvalidRecipient marks a recipient string that cannot be turned into a
// messaging address. Dispatch reports it as invalid_number.
var ErrInvalidRecipient = errors.New("invalid recipient number")

// Engine is the opaque messaging capability behind the bridge.
type Engine interface {
	// Connect starts the session. With no stored credentials this begins the
	// QR pairing flow; lifecycle progress arrives as published events.
	Connect(ctx context.Context) error
	// Disconnect tears down the connection without clearing credentials.
	Disconnect()
	// Logout ends the session and clears stored credentials. Engine-side
	// failures are swallowed: a stuck session must not block re-pairing, so
	// a logout event is always published regardless of outcome.
	Logout(ctx context.Context)
	// SendText delivers one text message. No retries: the call is not
	// idempotent and a retry could double-deliver.
	SendText(ctx context.Context, to, body string) (messageID string, err error)
	// SendImage uploads and delivers one image with an optional caption.
	SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) (messageID string, err error)
	// Close releases the engine's resources (device store handle).
	Close() error
}

// Publisher is where the adapter pushes lifecycle events. Satisfied by
// *bus.Bus.
type Publisher interface {
	Publish(session.Event)
}
