// Package pairing reconciles the three asynchronous WhatsApp signals (status
// poll, connect request, push events) into one state for the pairing view.
//
// All inputs are applied under a single mutex in arrival order. Every Close
// bumps a generation counter so results of work started before the Close are
// recognised and dropped.
package pairing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

// State of the pairing view.
type State int

const (
	Idle State = iota
	AwaitingQR
	ShowingQR
	Linking
	Linked
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingQR:
		return "awaiting_qr"
	case ShowingQR:
		return "showing_qr"
	case Linking:
		return "linking"
	case Linked:
		return "linked"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrorKind tells why the session Failed.
type ErrorKind string

const (
	ErrorNone    ErrorKind = ""
	ErrorTimeout ErrorKind = "timeout" // connect request ran out of time
	ErrorServer  ErrorKind = "server"  // connect request failed or was refused
	ErrorPush    ErrorKind = "push"    // backend reported an error over push
)

// User-facing messages.
const (
	MsgConnectTimeout = "La conexión está tardando más de lo esperado. Verifica tu teléfono e intenta nuevamente."
	MsgConnectFailed  = "Error al conectar WhatsApp"
	MsgPushError      = "Error de conexión"
)

var (
	ErrClosed            = errors.New("pairing view is not open")
	ErrConnectInProgress = errors.New("a WhatsApp connection attempt is already in progress")
	ErrAlreadyLinked     = errors.New("WhatsApp is already linked")
)

// Snapshot is the observable state of the view.
type Snapshot struct {
	State       State
	QR          string // opaque QR payload, empty unless ShowingQR or Linking
	Error       string
	ErrorKind   ErrorKind
	PhoneNumber string
	Name        string
	Seq         uint64 // increments on every applied transition
}

// Connector issues the one-shot connect request.
type Connector interface {
	ConnectWhatsApp(ctx context.Context) (*api.ConnectResponse, error)
}

// Config wires a Controller.
type Config struct {
	Connector      Connector
	Bus            *bus.Bus
	Indicator      *LinkIndicator // optional; created when nil
	ConnectTimeout time.Duration  // default 5m
}

// Controller is the Pairing Status Controller.
type Controller struct {
	connector      Connector
	bus            *bus.Bus
	indicator      *LinkIndicator
	connectTimeout time.Duration

	mu       sync.Mutex
	open     bool
	gen      uint64
	snap     Snapshot
	dispose  bus.Dispose
	cancel   context.CancelFunc
	inFlight bool
	listener func(Snapshot)

	wg sync.WaitGroup // connect goroutines
}

// NewController creates a closed controller. Call Open before use.
func NewController(cfg Config) *Controller {
	if cfg.Indicator == nil {
		cfg.Indicator = NewLinkIndicator()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Minute
	}
	return &Controller{
		connector:      cfg.Connector,
		bus:            cfg.Bus,
		indicator:      cfg.Indicator,
		connectTimeout: cfg.ConnectTimeout,
	}
}

// Linked returns the background link indicator.
func (c *Controller) Linked() Indicator { return c.indicator.Get() }

// Indicator exposes the shared indicator, e.g. for a StatusPoller.
func (c *Controller) Indicator() *LinkIndicator { return c.indicator }

// OnChange registers the listener called, in order, after each applied
// transition. It runs with the controller locked: it must not block and must
// not call back into the controller.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Open starts a fresh Idle session and subscribes to push events.
// Opening an open controller is a no-op.
func (c *Controller) Open() {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return
	}
	c.open = true
	c.gen++
	gen := c.gen
	c.transition(func(s *Snapshot) { *s = Snapshot{State: Idle} })
	c.mu.Unlock()

	// Subscribe outside the lock: the bus holds its own lock while dispatching
	// and handlers take c.mu.
	dispose := c.bus.Subscribe(func(e bus.Event) { c.handleEvent(gen, e) })

	c.mu.Lock()
	if !c.open || c.gen != gen {
		c.mu.Unlock()
		dispose()
		return
	}
	c.dispose = dispose
	c.mu.Unlock()
}

// Close resets to Idle, cancels an in-flight connect and removes the bus
// subscription. When Close returns no event or connect result can change
// the state any more.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.gen++
	dispose, cancel := c.dispose, c.cancel
	c.dispose, c.cancel = nil, nil
	c.transition(func(s *Snapshot) { *s = Snapshot{State: Idle} })
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dispose != nil {
		dispose()
	}
	c.wg.Wait()
}

// Connect issues the connect request in the background and moves to
// AwaitingQR. Only one request may be in flight.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ErrClosed
	}
	switch c.snap.State {
	case Linked:
		return ErrAlreadyLinked
	case AwaitingQR, ShowingQR, Linking:
		return ErrConnectInProgress
	}
	if c.inFlight {
		return ErrConnectInProgress
	}

	gen := c.gen
	reqCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	c.cancel = cancel
	c.inFlight = true
	c.transition(func(s *Snapshot) {
		s.State = AwaitingQR
		s.QR = ""
		s.Error, s.ErrorKind = "", ErrorNone
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		resp, err := c.connector.ConnectWhatsApp(reqCtx)
		c.applyConnectResult(gen, resp, err)
	}()
	return nil
}

func (c *Controller) applyConnectResult(gen uint64, resp *api.ConnectResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false
	if gen == c.gen {
		c.cancel = nil
	}
	if !c.open || gen != c.gen || c.snap.State == Linked {
		slog.Debug("whatsapp connect result discarded", "generation", gen, "state", c.snap.State)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, api.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
			slog.Warn("whatsapp connect timed out", "error", err)
			c.fail(ErrorTimeout, MsgConnectTimeout)
		case errors.Is(err, context.Canceled):
			c.transition(func(s *Snapshot) { *s = Snapshot{State: Idle} })
		default:
			slog.Warn("whatsapp connect failed", "error", err)
			msg := MsgConnectFailed
			var apiErr *api.Error
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				msg = MsgConnectFailed + ": " + apiErr.Message
			}
			c.fail(ErrorServer, msg)
		}
		return
	}

	switch {
	case !resp.Success || resp.Status == api.ConnectError:
		c.fail(ErrorServer, orDefault(resp.Message, MsgConnectFailed))
	case resp.Status == api.ConnectConnected:
		c.linked("", "")
		c.indicator.Observe(protocol.StatusConnected, resp.Message)
	case resp.Status == api.ConnectQRGenerated && resp.QRCode != "":
		if c.snap.State == AwaitingQR {
			c.transition(func(s *Snapshot) { s.State = ShowingQR; s.QR = resp.QRCode })
		}
	}
}

func (c *Controller) handleEvent(gen uint64, e bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || gen != c.gen {
		return
	}

	switch ev := e.(type) {
	case bus.QRGenerated:
		if c.snap.State == Linked {
			return
		}
		c.transition(func(s *Snapshot) {
			s.State = ShowingQR
			s.QR = ev.Payload
			s.Error, s.ErrorKind = "", ErrorNone
		})

	case bus.StatusChanged:
		c.indicator.Observe(ev.Status, ev.Message)
		if c.snap.State == Linked {
			return
		}
		switch ev.Status {
		case protocol.StatusConnected:
			c.linked(ev.PhoneNumber, ev.Name)
		case protocol.StatusConnecting:
			if c.snap.State == ShowingQR {
				c.transition(func(s *Snapshot) { s.State = Linking })
			}
		case protocol.StatusError:
			c.fail(ErrorPush, orDefault(ev.Message, MsgConnectFailed))
		}

	case bus.PairingError:
		if c.snap.State == Linked {
			return
		}
		c.fail(ErrorPush, orDefault(ev.Message, MsgPushError))
	}
}

// linked moves to the absorbing Linked state. The session (QR, error) is
// discarded; phone number and name are kept for display.
func (c *Controller) linked(phone, name string) {
	c.transition(func(s *Snapshot) {
		s.State = Linked
		s.QR = ""
		s.Error, s.ErrorKind = "", ErrorNone
		if phone != "" {
			s.PhoneNumber = phone
		}
		if name != "" {
			s.Name = name
		}
	})
}

func (c *Controller) fail(kind ErrorKind, msg string) {
	c.transition(func(s *Snapshot) {
		s.State = Failed
		s.QR = ""
		s.Error, s.ErrorKind = msg, kind
	})
}

// transition applies fn and notifies the listener. Caller holds c.mu.
func (c *Controller) transition(fn func(*Snapshot)) {
	seq := c.snap.Seq
	fn(&c.snap)
	c.snap.Seq = seq + 1
	if c.listener != nil {
		c.listener(c.snap)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
