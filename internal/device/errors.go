package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // reply ERROR_INVALID_DEVICE
//	}
var (
	// ErrDeviceNotFound is returned when no device is registered under a name.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a name that is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidName is returned when a device name is empty.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrRegistrySealed is returned when registering after the server has started.
	ErrRegistrySealed = errors.New("device: registry sealed")

	// ErrUnsupportedCommand matches every *UnsupportedCommandError.
	ErrUnsupportedCommand = errors.New("device: unsupported command")

	// ErrUnknownCommand is returned when decoding a tag that is not in the catalog.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrCommandExists is returned when a tag is registered in the catalog twice.
	ErrCommandExists = errors.New("device: command already registered")

	// ErrDeviceMismatch is returned when a command runs against a device type it does not target.
	ErrDeviceMismatch = errors.New("device: command does not target this device type")

	// ErrInvalidArguments is returned when command arguments fail to decode or validate.
	ErrInvalidArguments = errors.New("device: invalid command arguments")
)

// UnsupportedCommandError reports a command outside a device's capability set.
type UnsupportedCommandError struct {
	Device string
	Tag    Tag
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("device: command %q not supported by %q", e.Tag, e.Device)
}

// Is makes errors.Is(err, ErrUnsupportedCommand) match.
func (e *UnsupportedCommandError) Is(target error) bool {
	return target == ErrUnsupportedCommand
}

// PanicError wraps a panic raised by a command body.
type PanicError struct {
	Device string
	Tag    Tag
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("device: command %q on %q panicked: %v", e.Tag, e.Device, e.Value)
}
