package server

import (
	"context"
	"errors"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/protocol"
	"github.com/nerrad567/tophat-core/internal/worker"
)

// StatusFor maps a dispatch or execution error to the status sent to the client.
//
// Commands interrupted by shutdown (never started, submitted while the pool
// closes, or cancelled while running) report CANCELLED. Argument errors and
// every other failure report ERROR_UNKNOWN.
func StatusFor(err error) protocol.Status {
	switch {
	case err == nil:
		return protocol.StatusSuccess
	case errors.Is(err, device.ErrDeviceNotFound):
		return protocol.StatusInvalidDevice
	case errors.Is(err, device.ErrUnsupportedCommand), errors.Is(err, device.ErrUnknownCommand):
		return protocol.StatusUnsupportedCommand
	case errors.Is(err, worker.ErrCancelled), errors.Is(err, worker.ErrPoolClosed), errors.Is(err, context.Canceled):
		return protocol.StatusCancelled
	default:
		return protocol.StatusUnknown
	}
}
