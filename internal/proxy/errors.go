package proxy

import "errors"

var (
	// ErrOwnerUnavailable is returned when nothing accepts connections on
	// the owner's socket.
	ErrOwnerUnavailable = errors.New("proxy: owner unavailable")

	// ErrAlreadyStarted is returned when starting a running OwnerServer.
	ErrAlreadyStarted = errors.New("proxy: owner server already started")
)
