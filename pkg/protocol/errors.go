package protocol

import "errors"

var (
	// ErrEmptyFrame is returned for a zero-length text frame.
	ErrEmptyFrame = errors.New("protocol: empty frame")

	// ErrMalformedFrame is returned when packet type bytes are invalid.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrMalformedEvent is returned when an event body is not ["name", payload?].
	ErrMalformedEvent = errors.New("protocol: malformed event")

	// ErrMalformedPayload is returned when an event payload does not match its schema.
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)
