package protocol

import "errors"

var (
	// ErrFrameTooLarge is returned when a frame's declared length exceeds the channel maximum.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrEmptyFrame is returned when a frame declares a zero-length payload.
	ErrEmptyFrame = errors.New("protocol: empty frame")

	// ErrMalformed is returned when a payload is not a valid message.
	ErrMalformed = errors.New("protocol: malformed message")
)
