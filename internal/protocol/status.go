package protocol

import "fmt"

// Status is the outcome code carried in every Response.
type Status uint8

// Status values. The numbering is part of the wire format.
const (
	StatusSuccess Status = iota + 1
	StatusInvalidDevice
	StatusUnsupportedCommand
	StatusUnknown
	StatusCancelled
)

// String returns the wire-level status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidDevice:
		return "ERROR_INVALID_DEVICE"
	case StatusUnsupportedCommand:
		return "ERROR_UNSUPPORTED_COMMAND"
	case StatusUnknown:
		return "ERROR_UNKNOWN"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	return s >= StatusSuccess && s <= StatusCancelled
}
