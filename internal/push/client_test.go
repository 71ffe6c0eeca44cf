package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/session"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

// fakeServer speaks just enough Socket.IO to drive the client.
type fakeServer struct {
	t         *testing.T
	srv       *httptest.Server
	openFrame string
	reject    string // non-empty: answer the connect with 44
	script    []string
	hold      chan struct{} // closed to let the server drop the connection
	gotAuth   chan string
	gotSub    chan string
}

func newFakeServer(t *testing.T, script ...string) *fakeServer {
	fs := &fakeServer{
		t:         t,
		openFrame: `0{"sid":"eio1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`,
		script:    script,
		hold:      make(chan struct{}),
		gotAuth:   make(chan string, 1),
		gotSub:    make(chan string, 1),
	}
	up := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(fs.openFrame))
		_, auth, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.gotAuth <- string(auth)
		if fs.reject != "" {
			conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"`+fs.reject+`"}`))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sock1"}`))
		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.gotSub <- string(sub)

		for _, frame := range fs.script {
			conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		// Keep reading so pongs and the client's disconnect are consumed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		<-fs.hold
	}))
	t.Cleanup(func() {
		select {
		case <-fs.hold:
		default:
			close(fs.hold)
		}
		fs.srv.Close()
	})
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
	ch     chan struct{}
}

func newRecorder(b *bus.Bus) *recorder {
	r := &recorder{ch: make(chan struct{}, 64)}
	b.Subscribe(func(e bus.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
		r.ch <- struct{}{}
	})
	return r
}

func (r *recorder) wait(t *testing.T, n int) []bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		if len(r.events) >= n {
			out := append([]bus.Event(nil), r.events...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func TestDial_HandshakeAndDispatch(t *testing.T) {
	fs := newFakeServer(t,
		`2`,
		`42["whatsapp_qr_generated",{"qrCode":"2@abc"}]`,
		`42["whatsapp_status_change",{"status":"garbage"}]`,
		`42["whatsapp_qr_generated",{}]`,
		`42["whatsapp_status_change",{"status":"connected","phoneNumber":"5491122334455","name":"Tienda"}]`,
		`42["whatsapp_error",{"error":{"message":"QR expirado"}}]`,
		`42["whatsapp_message_received",{"body":"hola"}]`,
		`42["unknown_event",{}]`,
	)
	b := bus.New()
	rec := newRecorder(b)

	c, err := Dial(context.Background(), Config{URL: fs.url(), Token: "tok", Bus: b})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if got := <-fs.gotAuth; got != `40{"token":"tok"}` {
		t.Errorf("connect frame = %q", got)
	}
	if got := <-fs.gotSub; got != `42["subscribe_whatsapp"]` {
		t.Errorf("subscribe frame = %q", got)
	}
	if c.SID() != "sock1" {
		t.Errorf("SID = %q", c.SID())
	}

	events := rec.wait(t, 4)
	if qr, ok := events[0].(bus.QRGenerated); !ok || qr.Payload != "2@abc" {
		t.Errorf("event 0 = %#v", events[0])
	}
	if st, ok := events[1].(bus.StatusChanged); !ok || st.Status != protocol.StatusConnected || st.PhoneNumber != "5491122334455" || st.Name != "Tienda" {
		t.Errorf("event 1 = %#v", events[1])
	}
	if pe, ok := events[2].(bus.PairingError); !ok || pe.Message != "QR expirado" {
		t.Errorf("event 2 = %#v", events[2])
	}
	if ma, ok := events[3].(bus.MessageActivity); !ok || ma.Direction != "received" {
		t.Errorf("event 3 = %#v", events[3])
	}
}

func TestDial_Rejected(t *testing.T) {
	fs := newFakeServer(t)
	fs.reject = "Token inválido"

	_, err := Dial(context.Background(), Config{URL: fs.url(), Token: "bad", Bus: bus.New()})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
	if !strings.Contains(err.Error(), "Token inválido") {
		t.Errorf("reason missing from %q", err)
	}
}

func TestDial_RequiresToken(t *testing.T) {
	_, err := Dial(context.Background(), Config{URL: "ws://127.0.0.1:1", Bus: bus.New()})
	if !errors.Is(err, session.ErrNoToken) {
		t.Fatalf("got %v, want ErrNoToken", err)
	}
}

func TestClose_IsSynchronousAndClean(t *testing.T) {
	fs := newFakeServer(t)
	c, err := Dial(context.Background(), Config{URL: fs.url(), Token: "tok", Bus: bus.New()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close returned")
	}
	if c.Err() != nil {
		t.Errorf("Err after Close = %v, want nil", c.Err())
	}
	c.Close() // second call must not panic or block
}

func TestServerDrop_SurfacesError(t *testing.T) {
	fs := newFakeServer(t, `41`)
	c, err := Dial(context.Background(), Config{URL: fs.url(), Token: "tok", Bus: bus.New()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not end after server disconnect")
	}
	if !errors.Is(c.Err(), ErrServerClosed) {
		t.Errorf("Err = %v, want ErrServerClosed", c.Err())
	}
}
