// Package gateway pushes session-state transitions to connected dashboard
// clients over WebSocket, so the UI does not have to poll faster than a human
// can scan a QR code.
package gateway

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/uteqlabs/wabridge/internal/bus"
	"github.com/uteqlabs/wabridge/internal/session"
	"github.com/uteqlabs/wabridge/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin (dev server or CDN
	// build), same as the REST surface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server upgrades dashboard connections and keeps them fed with state frames.
type Server struct {
	store *session.Store
	bus   *bus.Bus

	mu      sync.Mutex
	clients map[string]*Client
}

func NewServer(store *session.Store, b *bus.Bus) *Server {
	return &Server{
		store:   store,
		bus:     b,
		clients: make(map[string]*Client),
	}
}

// ServeHTTP handles the /ws endpoint. Subscribers connect with no
// parameters: they get an immediate snapshot, then every transition until
// they disconnect. A dead subscriber is pruned silently.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn)
	s.register(c)
	slog.Info("dashboard subscriber connected", "client", c.id)

	// Snapshot first, so a client connecting mid-pairing sees the QR without
	// waiting for the next transition.
	c.enqueueState(StateFrame(s.store.Snapshot()))
	s.bus.Subscribe(c.id, func(snap session.Snapshot) {
		c.enqueueState(StateFrame(snap))
	})

	go c.writePump()
	c.readPump() // blocks until the peer goes away

	s.bus.Unsubscribe(c.id)
	s.unregister(c)
	c.close()
	slog.Info("dashboard subscriber disconnected", "client", c.id)
}

// ClientCount reports current subscribers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

// StateFrame converts a store snapshot into the wire event.
func StateFrame(snap session.Snapshot) protocol.StateEvent {
	ev := protocol.StateEvent{
		Event:  protocol.EventStateChanged,
		Status: string(snap.State),
	}
	if snap.Pairing != nil {
		ev.QR = snap.Pairing.ImageDataURL
	}
	return ev
}
