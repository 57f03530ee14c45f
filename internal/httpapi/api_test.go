package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uteqlabs/wabridge/internal/bus"
	"github.com/uteqlabs/wabridge/internal/dispatch"
	"github.com/uteqlabs/wabridge/internal/session"
	"github.com/uteqlabs/wabridge/pkg/protocol"
)

// fakeEngine implements engine.Engine. Logout publishes the logout event the
// way the real adapter does.
type fakeEngine struct {
	bus     *bus.Bus
	sent    []string
	failAll bool
	logouts int
}

func (f *fakeEngine) Connect(context.Context) error { return nil }
func (f *fakeEngine) Disconnect()                   {}
func (f *fakeEngine) Close() error                  { return nil }

func (f *fakeEngine) Logout(context.Context) {
	f.logouts++
	f.bus.Publish(session.Event{Kind: session.EventLogout, Reason: "logout requested"})
}

func (f *fakeEngine) SendText(_ context.Context, to, _ string) (string, error) {
	if f.failAll {
		return "", context.DeadlineExceeded
	}
	f.sent = append(f.sent, to)
	return "msg-" + to, nil
}

func (f *fakeEngine) SendImage(ctx context.Context, to string, _ []byte, _, caption string) (string, error) {
	return f.SendText(ctx, to, caption)
}

// testBridge wires store, bus, fake engine, dispatcher and API together with
// the same consume loop the serve command runs.
type testBridge struct {
	store  *session.Store
	bus    *bus.Bus
	engine *fakeEngine
	srv    *httptest.Server
	cancel context.CancelFunc
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	store := session.NewStore()
	b := bus.New()
	eng := &fakeEngine{bus: b}
	d := dispatch.New(store, eng, time.Second, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			ev, ok := b.Consume(ctx)
			if !ok {
				return
			}
			if snap, changed := store.Apply(ev); changed {
				b.Broadcast(snap)
			}
		}
	}()

	mux := http.NewServeMux()
	New(store, eng, d, b).Register(mux)
	srv := httptest.NewServer(CORS(mux))

	tb := &testBridge{store: store, bus: b, engine: eng, srv: srv, cancel: cancel}
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return tb
}

// apply pushes an event through the bus and waits for the store to settle.
func (tb *testBridge) apply(t *testing.T, ev session.Event, want session.State) {
	t.Helper()
	tb.bus.Publish(ev)
	deadline := time.Now().Add(2 * time.Second)
	for tb.store.State() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tb.store.State() != want {
		t.Fatalf("store did not reach %s, stuck at %s", want, tb.store.State())
	}
}

func (tb *testBridge) ready(t *testing.T) {
	tb.apply(t, session.Event{Kind: session.EventQR, Code: "C", ImageURL: "data:,c"}, session.StateQR)
	tb.apply(t, session.Event{Kind: session.EventAuthenticated}, session.StateAuthenticated)
	tb.apply(t, session.Event{Kind: session.EventReady}, session.StateReady)
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode
}

func TestStatus_DefaultsToDisconnected(t *testing.T) {
	tb := newTestBridge(t)

	var resp protocol.StatusResponse
	if code := getJSON(t, tb.srv.URL+"/status", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Status != protocol.StatusDisconnected {
		t.Errorf("expected disconnected, got %q", resp.Status)
	}
	if resp.Timestamp == "" {
		t.Error("expected timestamp")
	}
}

func TestQR_LifecycleScenario(t *testing.T) {
	tb := newTestBridge(t)

	// No QR yet.
	var qr protocol.QRResponse
	getJSON(t, tb.srv.URL+"/qr", &qr)
	if qr.Success {
		t.Error("expected success=false before pairing starts")
	}

	// Engine emits qr → payload available.
	tb.apply(t, session.Event{Kind: session.EventQR, Code: "CODE", ImageURL: "data:,img"}, session.StateQR)
	getJSON(t, tb.srv.URL+"/qr", &qr)
	if !qr.Success || qr.QR != "data:,img" || qr.Code != "CODE" {
		t.Errorf("expected pending QR, got %+v", qr)
	}

	// Engine authenticates → QR gone, status updated. Reset the struct so
	// omitempty fields absent from the response don't retain stale values.
	tb.apply(t, session.Event{Kind: session.EventAuthenticated}, session.StateAuthenticated)
	qr = protocol.QRResponse{}
	getJSON(t, tb.srv.URL+"/qr", &qr)
	if qr.Success || qr.QR != "" {
		t.Errorf("expected no QR after authentication, got %+v", qr)
	}
	if qr.Status != protocol.StatusAuthenticated {
		t.Errorf("expected authenticated status, got %q", qr.Status)
	}

	var st protocol.StatusResponse
	getJSON(t, tb.srv.URL+"/status", &st)
	if st.Status != protocol.StatusAuthenticated {
		t.Errorf("expected authenticated, got %q", st.Status)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	tb := newTestBridge(t)
	tb.ready(t)

	for i := 0; i < 2; i++ {
		var resp protocol.LogoutResponse
		if code := postJSON(t, tb.srv.URL+"/logout", nil, &resp); code != http.StatusOK {
			t.Fatalf("logout %d: expected 200, got %d", i+1, code)
		}
		if !resp.Success {
			t.Errorf("logout %d: expected success", i+1)
		}
	}
	if tb.store.State() != session.StateDisconnected {
		t.Errorf("expected disconnected, got %s", tb.store.State())
	}
	// Second call was a no-op: only one engine logout.
	if tb.engine.logouts != 1 {
		t.Errorf("expected 1 engine logout, got %d", tb.engine.logouts)
	}
}

func TestSend_RejectedWhenNotReady(t *testing.T) {
	tb := newTestBridge(t)

	var resp protocol.ErrorResponse
	code := postJSON(t, tb.srv.URL+"/send", protocol.DispatchRequest{
		Recipients: []string{"111"}, Body: "hola",
	}, &resp)
	if code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
	if resp.Code != protocol.ErrSessionNotReady {
		t.Errorf("expected SESSION_NOT_READY, got %q", resp.Code)
	}
	if len(tb.engine.sent) != 0 {
		t.Errorf("engine must not be called, got %v", tb.engine.sent)
	}
}

func TestSend_Batch(t *testing.T) {
	tb := newTestBridge(t)
	tb.ready(t)

	var resp protocol.DispatchResponse
	code := postJSON(t, tb.srv.URL+"/send", protocol.DispatchRequest{
		Recipients: []string{"111", "222", "333"}, Body: "comunicado",
	}, &resp)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !resp.AllSucceeded || len(resp.Results) != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSend_InvalidBody(t *testing.T) {
	tb := newTestBridge(t)
	tb.ready(t)

	var resp protocol.ErrorResponse
	code := postJSON(t, tb.srv.URL+"/send", protocol.DispatchRequest{Body: "no recipients"}, &resp)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if resp.Code != protocol.ErrInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %q", resp.Code)
	}
}

func TestSendMessage_LegacySingleRecipient(t *testing.T) {
	tb := newTestBridge(t)
	tb.ready(t)

	var resp protocol.SendMessageResponse
	code := postJSON(t, tb.srv.URL+"/send-message", protocol.SendMessageRequest{
		Phone: "0991234567", Message: "hola",
	}, &resp)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !resp.Success || resp.MessageID == "" || resp.To != "0991234567" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSendMessage_NotReady(t *testing.T) {
	tb := newTestBridge(t)

	var resp protocol.SendMessageResponse
	code := postJSON(t, tb.srv.URL+"/send-message", protocol.SendMessageRequest{
		Phone: "0991234567", Message: "hola",
	}, &resp)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if resp.Success {
		t.Error("expected failure")
	}
}

func TestHealth(t *testing.T) {
	tb := newTestBridge(t)

	var resp map[string]string
	if code := getJSON(t, tb.srv.URL+"/health", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["service"] != "wabridge" {
		t.Errorf("unexpected body: %v", resp)
	}
}

func TestCORS_Preflight(t *testing.T) {
	tb := newTestBridge(t)

	req, _ := http.NewRequest(http.MethodOptions, tb.srv.URL+"/send", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
