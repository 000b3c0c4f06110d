package sandbox

import "errors"

var (
	// ErrHatExists is returned when registering a hat name twice.
	ErrHatExists = errors.New("sandbox: hat already registered")

	// ErrInvalidHat is returned for a hat without a name.
	ErrInvalidHat = errors.New("sandbox: invalid hat")

	// ErrReservedArg is returned when a hat's launch args set an option the
	// box controls itself.
	ErrReservedArg = errors.New("sandbox: reserved launch argument")

	// ErrManagerStarted is returned when registering after StartAll.
	ErrManagerStarted = errors.New("sandbox: manager already started")

	// ErrNoEngine is returned when neither podman nor docker is installed.
	ErrNoEngine = errors.New("sandbox: no container engine found (tried podman, docker)")
)
