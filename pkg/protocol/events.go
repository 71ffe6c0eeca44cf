package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Events pushed by the backend on the default namespace.
const (
	EventQRGenerated     = "whatsapp_qr_generated"
	EventStatusChange    = "whatsapp_status_change"
	EventError           = "whatsapp_error"
	EventMessageReceived = "whatsapp_message_received"
	EventMessageSent     = "whatsapp_message_sent"
)

// EventSubscribeWhatsApp is emitted by the client right after the namespace connect.
const EventSubscribeWhatsApp = "subscribe_whatsapp"

// LinkStatus is the WhatsApp Web link state reported by the backend.
type LinkStatus string

const (
	StatusDisconnected LinkStatus = "disconnected"
	StatusConnecting   LinkStatus = "connecting"
	StatusConnected    LinkStatus = "connected"
	StatusError        LinkStatus = "error"
)

// Valid reports whether s is one of the four known statuses.
func (s LinkStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError:
		return true
	}
	return false
}

// ParseLinkStatus normalises a status string; unknown values are an error.
func ParseLinkStatus(s string) (LinkStatus, error) {
	st := LinkStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown link status %q", ErrMalformedPayload, s)
	}
	return st, nil
}

// QRGeneratedPayload is the body of EventQRGenerated.
type QRGeneratedPayload struct {
	QRCode string `json:"qrCode"`
}

// StatusChangePayload is the body of EventStatusChange.
type StatusChangePayload struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ErrorPayload is the body of EventError.
type ErrorPayload struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeQRGenerated validates and decodes an EventQRGenerated payload.
func DecodeQRGenerated(raw json.RawMessage) (QRGeneratedPayload, error) {
	var p QRGeneratedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, EventQRGenerated, err)
	}
	if strings.TrimSpace(p.QRCode) == "" {
		return p, fmt.Errorf("%w: %s: empty qrCode", ErrMalformedPayload, EventQRGenerated)
	}
	return p, nil
}

// DecodeStatusChange validates and decodes an EventStatusChange payload.
func DecodeStatusChange(raw json.RawMessage) (StatusChangePayload, LinkStatus, error) {
	var p StatusChangePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, "", fmt.Errorf("%w: %s: %v", ErrMalformedPayload, EventStatusChange, err)
	}
	st, err := ParseLinkStatus(p.Status)
	if err != nil {
		return p, "", err
	}
	return p, st, nil
}

// DecodeError decodes an EventError payload. The message may be empty.
func DecodeError(raw json.RawMessage) (ErrorPayload, error) {
	var p ErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, EventError, err)
	}
	return p, nil
}
