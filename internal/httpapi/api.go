// Package httpapi exposes the bridge's REST surface: session status and QR
// polling, logout, and outbound message dispatch.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/uteqlabs/wabridge/internal/bus"
	"github.com/uteqlabs/wabridge/internal/dispatch"
	"github.com/uteqlabs/wabridge/internal/engine"
	"github.com/uteqlabs/wabridge/internal/session"
	"github.com/uteqlabs/wabridge/pkg/protocol"
)

// logoutWait bounds how long POST /logout waits for the store to confirm
// disconnected. Logout forces the transition, so this only guards against a
// stalled event loop.
const logoutWait = 5 * time.Second

// API holds the handlers for the REST surface.
type API struct {
	store      *session.Store
	engine     engine.Engine
	dispatcher *dispatch.Dispatcher
	bus        *bus.Bus
}

func New(store *session.Store, eng engine.Engine, d *dispatch.Dispatcher, b *bus.Bus) *API {
	return &API{store: store, engine: eng, dispatcher: d, bus: b}
}

// Register mounts all REST endpoints on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/qr", a.handleQR)
	mux.HandleFunc("/logout", a.handleLogout)
	mux.HandleFunc("/send", a.handleSend)
	mux.HandleFunc("/send-message", a.handleSendMessage)
	mux.HandleFunc("/health", a.handleHealth)
}

// handleStatus reports the current session state. Never fails.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{
		Status:    string(a.store.State()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleQR returns the current pairing code. Absence of a code outside the
// qr state is an expected answer, so it is a 200 with success=false rather
// than an error status.
func (a *API) handleQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	snap := a.store.Snapshot()
	resp := protocol.QRResponse{Status: string(snap.State)}

	switch {
	case snap.State == session.StateQR && snap.Pairing != nil:
		resp.Success = true
		resp.QR = snap.Pairing.ImageDataURL
		resp.Code = snap.Pairing.Code
	case snap.State == session.StateAuthenticated || snap.State == session.StateReady:
		resp.Message = "already authenticated, no QR needed"
	default:
		resp.Message = "QR not available yet"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout asks the engine to log out and acknowledges once the store
// confirms disconnected. Idempotent: logging out while already disconnected
// is a no-op success with no engine call.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if a.store.State() == session.StateDisconnected {
		writeJSON(w, http.StatusOK, protocol.LogoutResponse{Success: true, Message: "already disconnected"})
		return
	}

	done := make(chan struct{}, 1)
	id := "logout-" + uuid.NewString()
	a.bus.Subscribe(id, func(snap session.Snapshot) {
		if snap.State == session.StateDisconnected {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer a.bus.Unsubscribe(id)

	a.engine.Logout(r.Context())

	select {
	case <-done:
	case <-time.After(logoutWait):
		slog.Warn("logout: store did not confirm disconnected in time")
	case <-r.Context().Done():
	}
	writeJSON(w, http.StatusOK, protocol.LogoutResponse{Success: true, Message: "session closed"})
}

// handleSend dispatches one batch to multiple recipients.
func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	// Generous limit: media attachments arrive base64-encoded in the body.
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)

	var req protocol.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Error: "invalid JSON: " + err.Error(), Code: protocol.ErrInvalidRequest,
		})
		return
	}

	resp, err := a.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Recipients: req.Recipients,
		Body:       req.Body,
		Media:      req.Media,
	})
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{
			Error: err.Error(), Code: protocol.ErrInvalidRequest,
		})
	case errors.Is(err, dispatch.ErrSessionNotReady):
		writeJSON(w, http.StatusConflict, protocol.ErrorResponse{
			Error: err.Error(), Code: protocol.ErrSessionNotReady,
		})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
			Error: err.Error(), Code: protocol.ErrEngineError,
		})
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSendMessage is the legacy single-recipient endpoint the school API
// proxies to. It reuses the dispatcher so pacing applies to it too.
func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req protocol.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.SendMessageResponse{
			Success: false, Error: "invalid JSON: " + err.Error(),
		})
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, protocol.SendMessageResponse{
			Success: false, Error: "phone and message are required",
		})
		return
	}

	resp, err := a.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Recipients: []string{req.Phone},
		Body:       req.Message,
	})
	if errors.Is(err, dispatch.ErrSessionNotReady) {
		writeJSON(w, http.StatusBadRequest, protocol.SendMessageResponse{
			Success: false,
			Error:   "WhatsApp is not ready. Current status: " + string(a.store.State()),
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.SendMessageResponse{Success: false, Error: err.Error()})
		return
	}

	result := resp.Results[0]
	if result.Status != protocol.RecipientSent {
		writeJSON(w, http.StatusInternalServerError, protocol.SendMessageResponse{
			Success: false, To: req.Phone, Error: "send failed: " + result.Reason,
		})
		return
	}
	writeJSON(w, http.StatusOK, protocol.SendMessageResponse{
		Success:   true,
		Message:   "message sent",
		MessageID: result.MessageID,
		To:        req.Phone,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "wabridge"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorResponse{
		Error: "method not allowed", Code: protocol.ErrInvalidRequest,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}
