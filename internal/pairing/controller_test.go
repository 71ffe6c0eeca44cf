package pairing

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

type connectResult struct {
	resp *api.ConnectResponse
	err  error
}

// fakeConnector blocks until a result is pushed or the context ends.
type fakeConnector struct {
	calls   atomic.Int32
	results chan connectResult
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{results: make(chan connectResult, 4)}
}

func (f *fakeConnector) ConnectWhatsApp(ctx context.Context) (*api.ConnectResponse, error) {
	f.calls.Add(1)
	select {
	case r := <-f.results:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConnector) reply(resp *api.ConnectResponse, err error) {
	f.results <- connectResult{resp: resp, err: err}
}

func newTestController(t *testing.T) (*Controller, *fakeConnector, *bus.Bus) {
	t.Helper()
	b := bus.New()
	fc := newFakeConnector()
	c := NewController(Config{Connector: fc, Bus: b, ConnectTimeout: 5 * time.Second})
	c.Open()
	t.Cleanup(c.Close)
	return c, fc, b
}

func waitState(t *testing.T, c *Controller, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); s.State == want {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.Snapshot().State, want)
	return Snapshot{}
}

func waitRequestDone(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		busy := c.inFlight
		c.mu.Unlock()
		if !busy {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("connect request still in flight")
}

func TestController_HappyPathScenario(t *testing.T) {
	c, _, b := newTestController(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s := c.Snapshot(); s.State != AwaitingQR {
		t.Fatalf("state = %s, want awaiting_qr", s.State)
	}

	b.Publish(bus.QRGenerated{Payload: "ABC"})
	if s := c.Snapshot(); s.State != ShowingQR || s.QR != "ABC" {
		t.Fatalf("after qr: %+v", s)
	}

	b.Publish(bus.StatusChanged{Status: protocol.StatusConnecting})
	if s := c.Snapshot(); s.State != Linking || s.QR != "ABC" {
		t.Fatalf("after connecting: %+v", s)
	}

	b.Publish(bus.StatusChanged{Status: protocol.StatusConnected, PhoneNumber: "+5491122334455"})
	s := c.Snapshot()
	if s.State != Linked {
		t.Fatalf("state = %s, want linked", s.State)
	}
	if s.QR != "" || s.Error != "" {
		t.Errorf("session not cleared: %+v", s)
	}
	if s.PhoneNumber != "+5491122334455" {
		t.Errorf("phone = %q", s.PhoneNumber)
	}
	if ind := c.Linked(); !ind.Linked || ind.Status != protocol.StatusConnected {
		t.Errorf("indicator = %+v", ind)
	}
}

func TestController_ConnectTimeoutScenario(t *testing.T) {
	b := bus.New()
	fc := newFakeConnector()
	c := NewController(Config{Connector: fc, Bus: b, ConnectTimeout: 30 * time.Millisecond})
	c.Open()
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := waitState(t, c, Failed)
	if s.ErrorKind != ErrorTimeout {
		t.Errorf("kind = %q, want timeout", s.ErrorKind)
	}
	if !strings.Contains(s.Error, "tardando") {
		t.Errorf("message %q should mention tardando", s.Error)
	}
	if s.QR != "" {
		t.Errorf("QR not cleared: %q", s.QR)
	}
}

func TestController_APITimeoutMapsToTimeout(t *testing.T) {
	c, fc, _ := newTestController(t)
	c.Connect(context.Background())
	fc.reply(nil, &api.Error{Kind: api.KindTimeout, Op: "whatsapp.connect"})
	s := waitState(t, c, Failed)
	if s.ErrorKind != ErrorTimeout || s.Error != MsgConnectTimeout {
		t.Errorf("got %+v", s)
	}
}

func TestController_TimeoutAndPushErrorAreDistinguishable(t *testing.T) {
	timeoutCtrl, fc1, _ := newTestController(t)
	timeoutCtrl.Connect(context.Background())
	fc1.reply(nil, context.DeadlineExceeded)
	timedOut := waitState(t, timeoutCtrl, Failed)

	pushCtrl, _, b := newTestController(t)
	pushCtrl.Connect(context.Background())
	b.Publish(bus.PairingError{})
	pushed := waitState(t, pushCtrl, Failed)

	serverCtrl, fc3, _ := newTestController(t)
	serverCtrl.Connect(context.Background())
	fc3.reply(nil, &api.Error{Kind: api.KindServer, Status: 500})
	server := waitState(t, serverCtrl, Failed)

	if timedOut.Error == pushed.Error || timedOut.Error == server.Error {
		t.Errorf("timeout message %q not distinct from %q / %q", timedOut.Error, pushed.Error, server.Error)
	}
	if pushed.Error != MsgPushError {
		t.Errorf("push default = %q", pushed.Error)
	}
	if timedOut.ErrorKind != ErrorTimeout || pushed.ErrorKind != ErrorPush || server.ErrorKind != ErrorServer {
		t.Errorf("kinds: %q %q %q", timedOut.ErrorKind, pushed.ErrorKind, server.ErrorKind)
	}
}

func TestController_ConnectedAlwaysEndsLinked(t *testing.T) {
	events := []bus.Event{
		bus.QRGenerated{Payload: "Q1"},
		bus.QRGenerated{Payload: "Q2"},
		bus.StatusChanged{Status: protocol.StatusConnecting},
		bus.StatusChanged{Status: protocol.StatusDisconnected},
		bus.StatusChanged{Status: protocol.StatusError, Message: "fallo"},
		bus.PairingError{Message: "boom"},
		bus.MessageActivity{Direction: "received"},
	}
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		b := bus.New()
		c := NewController(Config{Connector: newFakeConnector(), Bus: b})
		c.Open()
		if rng.IntN(2) == 0 {
			c.Connect(context.Background())
		}

		n := rng.IntN(8)
		at := rng.IntN(n + 1)
		for j := 0; j <= n; j++ {
			if j == at {
				b.Publish(bus.StatusChanged{Status: protocol.StatusConnected})
				continue
			}
			b.Publish(events[rng.IntN(len(events))])
		}

		s := c.Snapshot()
		if s.State != Linked || s.QR != "" {
			t.Fatalf("sequence %d: got %+v, want Linked with no QR", i, s)
		}
		c.Close()
	}
}

func TestController_NewQRReplacesOld(t *testing.T) {
	c, _, b := newTestController(t)
	c.Connect(context.Background())

	b.Publish(bus.QRGenerated{Payload: "first-qr-payload-long"})
	b.Publish(bus.QRGenerated{Payload: "second"})
	if s := c.Snapshot(); s.QR != "second" || s.State != ShowingQR {
		t.Errorf("got %+v", s)
	}

	// A QR after Linking restarts the scan.
	b.Publish(bus.StatusChanged{Status: protocol.StatusConnecting})
	b.Publish(bus.QRGenerated{Payload: "third"})
	if s := c.Snapshot(); s.QR != "third" || s.State != ShowingQR {
		t.Errorf("got %+v", s)
	}
}

func TestController_CloseWhileAwaitingThenReopen(t *testing.T) {
	b := bus.New()
	fc := newFakeConnector()
	c := NewController(Config{Connector: fc, Bus: b})
	c.Open()
	c.Connect(context.Background())
	if c.Snapshot().State != AwaitingQR {
		t.Fatal("expected awaiting_qr")
	}

	c.Close()
	if b.Len() != 0 {
		t.Fatalf("%d listeners leaked after Close", b.Len())
	}
	closed := c.Snapshot()
	if closed.State != Idle {
		t.Fatalf("state after close = %s", closed.State)
	}

	b.Publish(bus.QRGenerated{Payload: "late"})
	b.Publish(bus.StatusChanged{Status: protocol.StatusConnected})
	if after := c.Snapshot(); after != closed {
		t.Errorf("event after close changed state: %+v -> %+v", closed, after)
	}

	c.Open()
	defer c.Close()
	if s := c.Snapshot(); s.State != Idle || s.QR != "" || s.Error != "" {
		t.Errorf("reopened state = %+v", s)
	}
	if b.Len() != 1 {
		t.Errorf("listeners after reopen = %d, want 1", b.Len())
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("Connect after reopen: %v", err)
	}
}

func TestController_ResultAfterCloseIsDiscarded(t *testing.T) {
	b := bus.New()
	fc := &slowConnector{release: make(chan struct{})}
	c := NewController(Config{Connector: fc, Bus: b})
	c.Open()
	c.Connect(context.Background())

	var changes atomic.Int32
	c.OnChange(func(Snapshot) { changes.Add(1) })
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(fc.release)
	}()
	c.Close() // waits for the request goroutine
	before := changes.Load()

	if s := c.Snapshot(); s.State != Idle {
		t.Errorf("state = %s, want idle", s.State)
	}
	if changes.Load() != before {
		t.Error("late connect result produced a transition")
	}
}

// slowConnector ignores cancellation until released, like a request that
// completes in the background after the view moved on.
type slowConnector struct{ release chan struct{} }

func (s *slowConnector) ConnectWhatsApp(context.Context) (*api.ConnectResponse, error) {
	<-s.release
	return &api.ConnectResponse{Success: true, Status: api.ConnectQRGenerated, QRCode: "stale"}, nil
}

func TestController_ConnectGuards(t *testing.T) {
	b := bus.New()
	fc := newFakeConnector()
	c := NewController(Config{Connector: fc, Bus: b})

	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("closed: got %v", err)
	}

	c.Open()
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("awaiting: got %v", err)
	}
	b.Publish(bus.QRGenerated{Payload: "Q"})
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("showing: got %v", err)
	}

	// Failed by push while the request is still pending: still in flight.
	b.Publish(bus.PairingError{Message: "x"})
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnectInProgress) {
		t.Errorf("failed with request pending: got %v", err)
	}
	if fc.calls.Load() != 1 {
		t.Errorf("connector called %d times", fc.calls.Load())
	}

	b.Publish(bus.StatusChanged{Status: protocol.StatusConnected})
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyLinked) {
		t.Errorf("linked: got %v", err)
	}
}

func TestController_RetryAfterFailure(t *testing.T) {
	c, fc, _ := newTestController(t)
	c.Connect(context.Background())
	fc.reply(&api.ConnectResponse{Success: false, Message: "WhatsApp Web deshabilitado"}, nil)
	s := waitState(t, c, Failed)
	if s.ErrorKind != ErrorServer || s.Error != "WhatsApp Web deshabilitado" {
		t.Errorf("got %+v", s)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s := c.Snapshot(); s.State != AwaitingQR || s.Error != "" {
		t.Errorf("after retry: %+v", s)
	}
}

func TestController_ConnectResults(t *testing.T) {
	tests := []struct {
		name string
		resp *api.ConnectResponse
		err  error
		want State
		qr   string
		kind ErrorKind
	}{
		{"qr", &api.ConnectResponse{Success: true, Status: api.ConnectQRGenerated, QRCode: "R"}, nil, ShowingQR, "R", ErrorNone},
		{"connected", &api.ConnectResponse{Success: true, Status: api.ConnectConnected}, nil, Linked, "", ErrorNone},
		{"status error", &api.ConnectResponse{Success: true, Status: api.ConnectError}, nil, Failed, "", ErrorServer},
		{"refused", &api.ConnectResponse{Success: false}, nil, Failed, "", ErrorServer},
		{"http 500", nil, &api.Error{Kind: api.KindServer, Status: 500, Message: "caído"}, Failed, "", ErrorServer},
		{"network", nil, &api.Error{Kind: api.KindNetwork}, Failed, "", ErrorServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fc, _ := newTestController(t)
			c.Connect(context.Background())
			fc.reply(tt.resp, tt.err)
			s := waitState(t, c, tt.want)
			if s.QR != tt.qr || s.ErrorKind != tt.kind {
				t.Errorf("got %+v", s)
			}
		})
	}
}

func TestController_StaleQRResultDoesNotOverridePush(t *testing.T) {
	c, fc, b := newTestController(t)
	c.Connect(context.Background())
	b.Publish(bus.QRGenerated{Payload: "from-push"})

	fc.reply(&api.ConnectResponse{Success: true, Status: api.ConnectQRGenerated, QRCode: "from-response"}, nil)
	waitRequestDone(t, c)

	if s := c.Snapshot(); s.QR != "from-push" {
		t.Errorf("QR = %q, want from-push", s.QR)
	}
}

func TestController_ResultIgnoredOnceLinked(t *testing.T) {
	c, fc, b := newTestController(t)
	c.Connect(context.Background())
	b.Publish(bus.StatusChanged{Status: protocol.StatusConnected, Name: "Tienda"})

	fc.reply(nil, &api.Error{Kind: api.KindServer})
	waitRequestDone(t, c)
	if s := c.Snapshot(); s.State != Linked || s.Name != "Tienda" {
		t.Errorf("got %+v", s)
	}
}

func TestController_ConnectingBeforeQRStaysAwaiting(t *testing.T) {
	c, _, b := newTestController(t)
	c.Connect(context.Background())
	b.Publish(bus.StatusChanged{Status: protocol.StatusConnecting})
	if s := c.Snapshot(); s.State != AwaitingQR {
		t.Errorf("state = %s", s.State)
	}
}

func TestController_DisconnectedOnlyTouchesIndicator(t *testing.T) {
	c, _, b := newTestController(t)
	c.Connect(context.Background())
	b.Publish(bus.QRGenerated{Payload: "Q"})
	before := c.Snapshot()

	b.Publish(bus.StatusChanged{Status: protocol.StatusDisconnected})
	if after := c.Snapshot(); after != before {
		t.Errorf("session changed: %+v -> %+v", before, after)
	}
	if ind := c.Linked(); !ind.Known || ind.Linked || ind.Status != protocol.StatusDisconnected {
		t.Errorf("indicator = %+v", ind)
	}
}

func TestController_StatusErrorUsesMessage(t *testing.T) {
	c, _, b := newTestController(t)
	c.Connect(context.Background())
	b.Publish(bus.StatusChanged{Status: protocol.StatusError, Message: "Sesión rechazada"})
	s := c.Snapshot()
	if s.State != Failed || s.Error != "Sesión rechazada" || s.ErrorKind != ErrorPush {
		t.Errorf("got %+v", s)
	}
}

func TestController_ListenerSeesOrderedTransitions(t *testing.T) {
	c, _, b := newTestController(t)

	var mu sync.Mutex
	var seen []Snapshot
	c.OnChange(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	c.Connect(context.Background())
	b.Publish(bus.QRGenerated{Payload: "A"})
	b.Publish(bus.QRGenerated{Payload: "B"})
	b.Publish(bus.StatusChanged{Status: protocol.StatusConnected})

	mu.Lock()
	defer mu.Unlock()
	wantStates := []State{AwaitingQR, ShowingQR, ShowingQR, Linked}
	if len(seen) != len(wantStates) {
		t.Fatalf("saw %d transitions, want %d", len(seen), len(wantStates))
	}
	for i, s := range seen {
		if s.State != wantStates[i] {
			t.Errorf("transition %d = %s, want %s", i, s.State, wantStates[i])
		}
		if i > 0 && s.Seq != seen[i-1].Seq+1 {
			t.Errorf("seq not consecutive at %d: %d after %d", i, s.Seq, seen[i-1].Seq)
		}
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", AwaitingQR: "awaiting_qr", Linked: "linked", Failed: "failed", State(99): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}
