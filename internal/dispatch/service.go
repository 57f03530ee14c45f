// Package dispatch gates outbound message batches behind session readiness
// and fans them out to the engine one recipient at a time.
package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/uteqlabs/wabridge/internal/engine"
	"github.com/uteqlabs/wabridge/internal/session"
	"github.com/uteqlabs/wabridge/pkg/protocol"
)

// ErrSessionNotReady rejects a batch before any engine call is made.
var ErrSessionNotReady = errors.New("session is not ready")

// ErrInvalidRequest covers empty recipient lists, empty bodies and
// undecodable media.
var ErrInvalidRequest = errors.New("invalid dispatch request")

// Request is one outbound batch from the dashboard's Comunicados screen.
type Request struct {
	Recipients []string
	Body       string
	Media      *protocol.Media
}

// Dispatcher sends batches sequentially: recipient N+1 is not attempted
// until N's outcome is known. One bad number does not abort the batch; a
// lost session does.
type Dispatcher struct {
	store  *session.Store
	engine engine.Engine

	mu      sync.Mutex
	timeout time.Duration
	limiter *rate.Limiter
}

func New(store *session.Store, eng engine.Engine, timeout time.Duration, perSecond float64) *Dispatcher {
	d := &Dispatcher{store: store, engine: eng}
	d.SetPacing(timeout, perSecond)
	return d
}

// SetPacing applies (possibly reloaded) send settings: per-recipient timeout
// and messages per second on the single underlying session.
func (d *Dispatcher) SetPacing(timeout time.Duration, perSecond float64) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = timeout
	d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

func (d *Dispatcher) pacing() (time.Duration, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeout, d.limiter
}

// Dispatch validates, gates on readiness, then sends to each recipient in
// order. Per-recipient failures are recorded and the loop continues; if the
// session drops mid-batch the remaining recipients are marked session_lost
// without further engine calls.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (protocol.DispatchResponse, error) {
	if len(req.Recipients) == 0 {
		return protocol.DispatchResponse{}, fmt.Errorf("%w: recipients is empty", ErrInvalidRequest)
	}
	if req.Body == "" && req.Media == nil {
		return protocol.DispatchResponse{}, fmt.Errorf("%w: body or media is required", ErrInvalidRequest)
	}

	var media []byte
	if req.Media != nil {
		decoded, err := base64.StdEncoding.DecodeString(req.Media.Data)
		if err != nil {
			return protocol.DispatchResponse{}, fmt.Errorf("%w: media data is not valid base64", ErrInvalidRequest)
		}
		media = decoded
	}

	if d.store.State() != session.StateReady {
		return protocol.DispatchResponse{}, fmt.Errorf("%w: current status is %s", ErrSessionNotReady, d.store.State())
	}

	results := make([]protocol.RecipientResult, 0, len(req.Recipients))
	lost := false
	for _, to := range req.Recipients {
		if !lost && d.store.State() != session.StateReady {
			lost = true
		}
		if lost {
			results = append(results, protocol.RecipientResult{
				Recipient: to,
				Status:    protocol.RecipientFailed,
				Reason:    protocol.ReasonSessionLost,
			})
			continue
		}

		res := d.sendOne(ctx, to, req.Body, media, req.Media)
		if res.Status == protocol.RecipientFailed && d.store.State() != session.StateReady {
			// The failure was the session dropping, not this recipient.
			res.Reason = protocol.ReasonSessionLost
			lost = true
		}
		results = append(results, res)
	}

	all := true
	for _, r := range results {
		if r.Status != protocol.RecipientSent {
			all = false
			break
		}
	}
	return protocol.DispatchResponse{AllSucceeded: all, Results: results}, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, to, body string, media []byte, m *protocol.Media) protocol.RecipientResult {
	timeout, limiter := d.pacing()

	if err := limiter.Wait(ctx); err != nil {
		return protocol.RecipientResult{Recipient: to, Status: protocol.RecipientFailed, Reason: protocol.ReasonTimeout}
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var id string
	var err error
	if media != nil {
		id, err = d.engine.SendImage(sctx, to, media, m.MimeType, body)
	} else {
		id, err = d.engine.SendText(sctx, to, body)
	}
	if err == nil {
		slog.Info("message sent", "to", to, "id", id)
		return protocol.RecipientResult{Recipient: to, Status: protocol.RecipientSent, MessageID: id}
	}

	reason := protocol.ReasonSendFailed
	switch {
	case errors.Is(err, engine.ErrInvalidRecipient):
		reason = protocol.ReasonInvalidNumber
	case errors.Is(err, context.DeadlineExceeded):
		reason = protocol.ReasonTimeout
	}
	slog.Warn("message send failed", "to", to, "reason", reason, "error", err)
	return protocol.RecipientResult{Recipient: to, Status: protocol.RecipientFailed, Reason: reason}
}
