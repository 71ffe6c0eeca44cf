// Package push maintains the authenticated push connection used for WhatsApp
// pairing events and forwards decoded events to the bus.
//
// The connection speaks Socket.IO v5 over an Engine.IO v4 WebSocket. It is
// not re-established after a drop: Done is closed and Err reports why.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/omniwp/internal/bus"
	"github.com/nextlevelbuilder/omniwp/internal/session"
	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

// maxWSMessageSize bounds a single frame (QR images arrive as data URLs).
const maxWSMessageSize = 1 << 20

const defaultHandshakeTimeout = 15 * time.Second

var (
	// ErrRejected is returned when the server refuses the namespace connect (bad token).
	ErrRejected = errors.New("push connection rejected")
	// ErrServerClosed reports that the server ended the session.
	ErrServerClosed = errors.New("push connection closed by server")
)

// Config configures Dial.
type Config struct {
	URL              string // ws(s)://host/socket.io/?EIO=4&transport=websocket
	Token            string
	Bus              *bus.Bus
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer // optional
}

// Client is one live push connection.
type Client struct {
	conn     *websocket.Conn
	bus      *bus.Bus
	liveness time.Duration
	sid      string

	writeMu sync.Mutex

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	err       error // set before done is closed
}

// Dial connects, authenticates with the token and subscribes to WhatsApp
// events. The returned client is already dispatching to cfg.Bus.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, session.ErrNoToken
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("push: bus is required")
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("push dial: %w", err)
	}
	conn.SetReadLimit(maxWSMessageSize)

	c := &Client{
		conn:    conn,
		bus:     cfg.Bus,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	deadline, _ := ctx.Deadline()
	if err := c.handshake(deadline, cfg.Token); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	slog.Info("push connected", "sid", c.sid)
	return c, nil
}

func (c *Client) handshake(deadline time.Time, token string) error {
	c.conn.SetReadDeadline(deadline)

	f, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("push open: %w", err)
	}
	if f.Engine != protocol.PacketOpen {
		return fmt.Errorf("push open: %w: expected open packet, got %q", protocol.ErrMalformedFrame, f.Engine)
	}
	var open protocol.OpenPayload
	if err := json.Unmarshal(f.Data, &open); err != nil {
		return fmt.Errorf("push open: %w: %v", protocol.ErrMalformedFrame, err)
	}
	c.liveness = open.Liveness()

	connect, err := protocol.EncodeConnect(map[string]string{"token": token})
	if err != nil {
		return err
	}
	if err := c.write(connect); err != nil {
		return fmt.Errorf("push connect: %w", err)
	}

	for {
		f, err := c.readFrame()
		if err != nil {
			return fmt.Errorf("push connect: %w", err)
		}
		switch {
		case f.Engine == protocol.PacketPing:
			if err := c.write([]byte{protocol.PacketPong}); err != nil {
				return err
			}
		case f.Engine == protocol.PacketMessage && f.Socket == protocol.SocketConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(f.Data, &ack)
			c.sid = ack.SID
			sub, err := protocol.EncodeEvent(protocol.EventSubscribeWhatsApp, nil)
			if err != nil {
				return err
			}
			return c.write(sub)
		case f.Engine == protocol.PacketMessage && f.Socket == protocol.SocketConnectError:
			slog.Warn("security.push_rejected", "reason", protocol.ConnectErrorMessage(f.Data))
			return fmt.Errorf("%w: %s", ErrRejected, protocol.ConnectErrorMessage(f.Data))
		case f.Engine == protocol.PacketClose:
			return ErrServerClosed
		}
	}
}

func (c *Client) readFrame() (protocol.Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.ParseFrame(data)
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	var err error
	defer func() {
		select {
		case <-c.closing:
			err = nil
		default:
		}
		c.err = err
		c.conn.Close()
		close(c.done)
		if err != nil {
			slog.Warn("push connection lost", "error", err)
		}
	}()

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.liveness))
		_, data, rerr := c.conn.ReadMessage()
		if rerr != nil {
			err = rerr
			return
		}
		f, perr := protocol.ParseFrame(data)
		if perr != nil {
			slog.Warn("push frame dropped", "error", perr)
			continue
		}

		switch f.Engine {
		case protocol.PacketPing:
			if werr := c.write([]byte{protocol.PacketPong}); werr != nil {
				err = werr
				return
			}
		case protocol.PacketClose:
			err = ErrServerClosed
			return
		case protocol.PacketMessage:
			switch f.Socket {
			case protocol.SocketEvent:
				c.dispatch(f.Data)
			case protocol.SocketDisconnect:
				err = ErrServerClosed
				return
			}
		}
	}
}

// dispatch decodes one event and publishes it. Malformed payloads are logged
// and dropped.
func (c *Client) dispatch(data []byte) {
	ev, err := protocol.ParseEvent(data)
	if err != nil {
		slog.Warn("push event dropped", "error", err)
		return
	}

	switch ev.Name {
	case protocol.EventQRGenerated:
		p, err := protocol.DecodeQRGenerated(ev.Payload)
		if err != nil {
			slog.Warn("push event dropped", "event", ev.Name, "error", err)
			return
		}
		c.bus.Publish(bus.QRGenerated{Payload: p.QRCode})

	case protocol.EventStatusChange:
		p, st, err := protocol.DecodeStatusChange(ev.Payload)
		if err != nil {
			slog.Warn("push event dropped", "event", ev.Name, "error", err)
			return
		}
		c.bus.Publish(bus.StatusChanged{Status: st, Message: p.Message, PhoneNumber: p.PhoneNumber, Name: p.Name})

	case protocol.EventError:
		p, err := protocol.DecodeError(ev.Payload)
		if err != nil {
			slog.Warn("push event dropped", "event", ev.Name, "error", err)
			return
		}
		c.bus.Publish(bus.PairingError{Message: p.Error.Message})

	case protocol.EventMessageReceived:
		c.bus.Publish(bus.MessageActivity{Direction: "received", Raw: ev.Payload})
	case protocol.EventMessageSent:
		c.bus.Publish(bus.MessageActivity{Direction: "sent", Raw: ev.Payload})

	default:
		slog.Debug("push event ignored", "event", ev.Name)
	}
}

// SID returns the Socket.IO session id assigned by the server.
func (c *Client) SID() string { return c.sid }

// Done is closed when the connection has ended, by Close or otherwise.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended. It is nil while running and after Close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close disconnects and waits for the read loop to exit. No event is
// published after Close returns. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.write([]byte{protocol.PacketMessage, protocol.SocketDisconnect})
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	})
	<-c.done
	return nil
}
