package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/uteqlabs/wabridge/internal/session"
)

// reconnectDelay is the pause before re-initializing after logout or a QR
// timeout, so the engine settles before issuing a fresh code.
const reconnectDelay = 2 * time.Second

// Meow drives a single WhatsApp Web session through whatsmeow.
type Meow struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	pub       Publisher
	verbose   bool
}

var _ Engine = (*Meow)(nil)

// stderrLogger builds whatsmeow's logger on zerolog, writing to stderr so it
// never mixes with stdout output (console QR rendering).
func stderrLogger(module string, verbose bool) waLog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	}).Level(level).With().Str("module", module).Timestamp().Logger()
	return waLog.Zerolog(logger)
}

// NewMeow opens the sqlite-backed device store under dataDir and prepares a
// client. Connect must be called separately.
func NewMeow(ctx context.Context, dataDir string, pub Publisher, verbose bool) (*Meow, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "session.db")
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), stderrLogger("Database", verbose))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	m := &Meow{
		client:    whatsmeow.NewClient(deviceStore, stderrLogger("Client", verbose)),
		container: container,
		pub:       pub,
		verbose:   verbose,
	}
	m.client.AddEventHandler(m.handleEvent)
	return m, nil
}

// Connect starts the session. With no stored device it runs the QR pairing
// loop in the background; each fresh code is published along with a rendered
// PNG data URL for the dashboard.
func (m *Meow) Connect(ctx context.Context) error {
	if m.client.Store.ID == nil {
		qrChan, _ := m.client.GetQRChannel(ctx)
		if err := m.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go m.pairLoop(qrChan)
		return nil
	}
	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (m *Meow) pairLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	defer m.recoverToDisconnected("pairing")

	for evt := range qrChan {
		switch {
		case evt.Event == "code":
			m.pub.Publish(session.Event{
				Kind:     session.EventQR,
				Code:     evt.Code,
				ImageURL: renderDataURL(evt.Code),
			})
		case evt.Event == "success":
			m.pub.Publish(session.Event{Kind: session.EventAuthenticated})
		case evt.Event == "timeout":
			m.pub.Publish(session.Event{Kind: session.EventAuthFailure, Reason: "qr scan timed out"})
			m.reconnect()
		case strings.HasPrefix(evt.Event, "err-"):
			m.pub.Publish(session.Event{Kind: session.EventAuthFailure, Reason: evt.Event})
		}
	}
}

// handleEvent maps whatsmeow events onto session lifecycle events. It is the
// adapter's callback boundary: nothing thrown by the engine may escape it.
func (m *Meow) handleEvent(evt interface{}) {
	defer m.recoverToDisconnected("event handler")

	switch v := evt.(type) {
	case *events.PairSuccess:
		m.pub.Publish(session.Event{Kind: session.EventAuthenticated})

	case *events.PairError:
		m.pub.Publish(session.Event{Kind: session.EventAuthFailure, Reason: v.Error.Error()})

	case *events.Connected:
		// A restored session skips the pairing loop, so emit both edges; the
		// store drops the first one if it already happened.
		m.pub.Publish(session.Event{Kind: session.EventAuthenticated})
		m.pub.Publish(session.Event{Kind: session.EventReady})

	case *events.Disconnected:
		m.pub.Publish(session.Event{Kind: session.EventDisconnected, Reason: "connection lost"})

	case *events.LoggedOut:
		reason := "logged out"
		if v.Reason != 0 {
			reason = fmt.Sprintf("logged out (code %d)", int(v.Reason))
		}
		m.pub.Publish(session.Event{Kind: session.EventDisconnected, Reason: reason})

	case *events.StreamReplaced:
		m.pub.Publish(session.Event{Kind: session.EventDisconnected, Reason: "stream replaced by another connection"})
	}
}

// recoverToDisconnected converts a panic at the callback boundary into a
// clean disconnected transition so the state machine never wedges.
func (m *Meow) recoverToDisconnected(where string) {
	if r := recover(); r != nil {
		slog.Error("engine panic recovered", "where", where, "panic", r)
		m.pub.Publish(session.Event{Kind: session.EventDisconnected, Reason: "engine failure"})
	}
}

// Disconnect tears down the connection without clearing credentials.
func (m *Meow) Disconnect() {
	m.client.Disconnect()
}

// Logout ends the session. Errors are logged and swallowed; the logout event
// is always published so the store is forced to disconnected, and the client
// reconnects shortly after to begin issuing a fresh QR.
func (m *Meow) Logout(ctx context.Context) {
	if err := m.client.Logout(ctx); err != nil {
		slog.Warn("engine logout failed", "error", err)
	}
	m.pub.Publish(session.Event{Kind: session.EventLogout, Reason: "logout requested"})
	m.reconnect()
}

// reconnect tears the connection down and connects again after a short pause.
// The dashboard expects a logged-out bridge to start pairing on its own.
func (m *Meow) reconnect() {
	time.AfterFunc(reconnectDelay, func() {
		defer m.recoverToDisconnected("reconnect")
		m.client.Disconnect()
		if err := m.Connect(context.Background()); err != nil {
			slog.Error("engine reconnect failed", "error", err)
			m.pub.Publish(session.Event{Kind: session.EventDisconnected, Reason: "reconnect failed"})
		}
	})
}

// SendText delivers one text message. No retry on failure.
func (m *Meow) SendText(ctx context.Context, to, body string) (string, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return "", err
	}
	resp, err := m.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body})
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", to, err)
	}
	return resp.ID, nil
}

// SendImage uploads the image and delivers it with an optional caption.
func (m *Meow) SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) (string, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	uploaded, err := m.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	imageMsg := &waE2E.ImageMessage{
		Mimetype:      &mimeType,
		URL:           &uploaded.URL,
		DirectPath:    &uploaded.DirectPath,
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    &uploaded.FileLength,
	}
	if caption != "" {
		imageMsg.Caption = &caption
	}

	resp, err := m.client.SendMessage(ctx, jid, &waE2E.Message{ImageMessage: imageMsg})
	if err != nil {
		return "", fmt.Errorf("send image to %s: %w", to, err)
	}
	return resp.ID, nil
}

// Close releases the device store handle.
func (m *Meow) Close() error {
	return m.container.Close()
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// ParseRecipient normalizes a phone-number-like string into a user JID.
// The dashboard sends numbers with optional +, spaces and dashes.
func ParseRecipient(phone string) (types.JID, error) {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return types.JID{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, phone)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
