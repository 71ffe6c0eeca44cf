// Package bus fans push-channel events out to in-process subscribers.
//
// Subscriptions have an explicit lifetime: Subscribe returns a Dispose func
// that must be called when the subscriber goes away. Once Dispose returns,
// the handler is guaranteed not to be running and will never be called again.
package bus

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/omniwp/pkg/protocol"
)

// Event is implemented by every typed event published on the bus.
type Event interface {
	EventName() string
}

// QRGenerated carries a freshly generated pairing QR payload.
type QRGenerated struct {
	Payload string
}

// StatusChanged reports a WhatsApp link status transition.
type StatusChanged struct {
	Status      protocol.LinkStatus
	Message     string
	PhoneNumber string
	Name        string
}

// PairingError reports a backend-side pairing failure.
type PairingError struct {
	Message string
}

// MessageActivity reports an inbound or outbound WhatsApp message.
// The payload is passed through untouched.
type MessageActivity struct {
	Direction string // "received" or "sent"
	Raw       json.RawMessage
}

func (QRGenerated) EventName() string     { return protocol.EventQRGenerated }
func (StatusChanged) EventName() string   { return protocol.EventStatusChange }
func (PairingError) EventName() string    { return protocol.EventError }
func (e MessageActivity) EventName() string {
	if e.Direction == "sent" {
		return protocol.EventMessageSent
	}
	return protocol.EventMessageReceived
}

// Handler receives events. Handlers run on the publisher's goroutine and must
// not block or call Subscribe/Dispose on the same bus.
type Handler func(Event)

// Dispose removes a subscription. It is safe to call more than once.
type Dispose func()

// Bus is a synchronous publish/subscribe hub.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]Handler
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]Handler)}
}

// Subscribe registers handler and returns its disposer.
func (b *Bus) Subscribe(handler Handler) Dispose {
	id := uuid.NewString()

	b.mu.Lock()
	b.subscribers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			// Taking the write lock waits out any Publish currently running handler.
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			slog.Debug("bus subscriber disposed", "id", id)
		})
	}
}

// Publish delivers event to every current subscriber, in the caller's goroutine.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, handler := range b.subscribers {
		handler(event)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
