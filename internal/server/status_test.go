package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/protocol"
	"github.com/nerrad567/tophat-core/internal/proxy"
	"github.com/nerrad567/tophat-core/internal/worker"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.Status
	}{
		{"success", nil, protocol.StatusSuccess},
		{"not found", fmt.Errorf("lookup: %w", device.ErrDeviceNotFound), protocol.StatusInvalidDevice},
		{"unsupported", &device.UnsupportedCommandError{Device: "printer", Tag: "switch.toggle"}, protocol.StatusUnsupportedCommand},
		{"unknown tag", fmt.Errorf("%w: bogus", device.ErrUnknownCommand), protocol.StatusUnsupportedCommand},
		{"never started", worker.ErrCancelled, protocol.StatusCancelled},
		{"pool closed", worker.ErrPoolClosed, protocol.StatusCancelled},
		{"interrupted", fmt.Errorf("waiting for strip: %w", context.Canceled), protocol.StatusCancelled},
		{"queue full", worker.ErrQueueFull, protocol.StatusUnknown},
		{"owner unavailable", proxy.ErrOwnerUnavailable, protocol.StatusUnknown},
		{"bad arguments", device.ErrInvalidArguments, protocol.StatusUnknown},
		{"panic", &device.PanicError{Device: "d", Tag: "t", Value: "boom"}, protocol.StatusUnknown},
		{"other", errors.New("driver fault"), protocol.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
