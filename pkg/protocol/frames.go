// Package protocol defines the wire format of the OmniWP push channel:
// Socket.IO v5 packets carried inside Engine.IO v4 text frames over a WebSocket.
// This package has no dependencies on the rest of the module so other clients can import it.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EngineIOVersion is sent as the EIO query parameter during the WebSocket upgrade.
const EngineIOVersion = 4

// Engine.IO packet types (first byte of every text frame).
const (
	PacketOpen    byte = '0'
	PacketClose   byte = '1'
	PacketPing    byte = '2'
	PacketPong    byte = '3'
	PacketMessage byte = '4'
	PacketUpgrade byte = '5'
	PacketNoop    byte = '6'
)

// Socket.IO packet types (second byte of an Engine.IO message packet).
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
)

// OpenPayload is the JSON body of the Engine.IO open packet.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // millis
	PingTimeout  int      `json:"pingTimeout"`  // millis
	MaxPayload   int      `json:"maxPayload"`
}

// Liveness returns how long a client may go without hearing from the server
// before the connection is considered dead (pingInterval + pingTimeout).
func (p OpenPayload) Liveness() time.Duration {
	d := time.Duration(p.PingInterval+p.PingTimeout) * time.Millisecond
	if d <= 0 {
		return 45 * time.Second
	}
	return d
}

// Frame is a decoded text frame.
type Frame struct {
	Engine byte   // Engine.IO packet type
	Socket byte   // Socket.IO packet type; zero unless Engine == PacketMessage
	Data   []byte // JSON remainder after type bytes, namespace and ack id
}

// ParseFrame splits a raw text frame into its packet types and JSON body.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	f := Frame{Engine: raw[0]}
	if f.Engine < PacketOpen || f.Engine > PacketNoop {
		return Frame{}, fmt.Errorf("%w: engine type %q", ErrMalformedFrame, f.Engine)
	}
	if f.Engine != PacketMessage {
		f.Data = raw[1:]
		return f, nil
	}
	if len(raw) < 2 {
		return Frame{}, fmt.Errorf("%w: message without socket type", ErrMalformedFrame)
	}
	f.Socket = raw[1]
	if f.Socket < SocketConnect || f.Socket > '6' {
		return Frame{}, fmt.Errorf("%w: socket type %q", ErrMalformedFrame, f.Socket)
	}
	rest := raw[2:]

	// Optional namespace ("/admin,").
	if len(rest) > 0 && rest[0] == '/' {
		i := bytes.IndexByte(rest, ',')
		if i < 0 {
			// Namespace-only packet such as "40/admin".
			f.Data = nil
			return f, nil
		}
		rest = rest[i+1:]
	}

	// Optional ack id.
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	f.Data = rest[i:]
	return f, nil
}

// Encode renders the frame back into wire form (default namespace, no ack id).
func (f Frame) Encode() []byte {
	out := make([]byte, 0, len(f.Data)+2)
	out = append(out, f.Engine)
	if f.Engine == PacketMessage {
		out = append(out, f.Socket)
	}
	return append(out, f.Data...)
}

// Event is a decoded Socket.IO event: ["name", payload].
type Event struct {
	Name    string
	Payload json.RawMessage
}

// ParseEvent decodes the JSON array body of an event packet.
// A missing payload yields a nil Payload.
func ParseEvent(data []byte) (Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if len(parts) == 0 {
		return Event{}, fmt.Errorf("%w: empty event array", ErrMalformedEvent)
	}
	var ev Event
	if err := json.Unmarshal(parts[0], &ev.Name); err != nil || ev.Name == "" {
		return Event{}, fmt.Errorf("%w: event name is not a string", ErrMalformedEvent)
	}
	if len(parts) > 1 {
		ev.Payload = parts[1]
	}
	return ev, nil
}

// EncodeEvent builds a "42[...]" event frame. A nil payload emits the name only.
func EncodeEvent(name string, payload any) ([]byte, error) {
	parts := []any{name}
	if payload != nil {
		parts = append(parts, payload)
	}
	body, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return Frame{Engine: PacketMessage, Socket: SocketEvent, Data: body}.Encode(), nil
}

// EncodeConnect builds the "40{auth}" namespace connect frame.
func EncodeConnect(auth any) ([]byte, error) {
	f := Frame{Engine: PacketMessage, Socket: SocketConnect}
	if auth != nil {
		body, err := json.Marshal(auth)
		if err != nil {
			return nil, err
		}
		f.Data = body
	}
	return f.Encode(), nil
}

// ConnectErrorMessage extracts the reason from a "44{...}" connect error body.
func ConnectErrorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if len(data) == 0 {
		return "connection refused"
	}
	return string(data)
}
