package server

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called on a running server.
	ErrAlreadyStarted = errors.New("server: already started")

	// ErrClosed is returned when Start is called after Close.
	ErrClosed = errors.New("server: closed")
)
