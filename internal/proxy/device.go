package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/protocol"
)

// DefaultSendTimeout bounds dialling the owner and writing one envelope.
const DefaultSendTimeout = 2 * time.Second

// probeTimeout bounds the liveness dial made during admission.
const probeTimeout = 500 * time.Millisecond

// Device stands in for a device owned by another process.
type Device struct {
	device.Base
	socketPath  string
	sendTimeout time.Duration
}

// New returns a proxy called name that forwards tags to the owner
// listening on socketPath.
func New(name, socketPath string, tags device.TagSet) *Device {
	return &Device{
		Base:        device.NewBase(name, tags),
		socketPath:  socketPath,
		sendTimeout: DefaultSendTimeout,
	}
}

// SocketPath returns the owner's socket path.
func (d *Device) SocketPath() string {
	return d.socketPath
}

// Check adds an owner liveness test to the capability check, so a dead
// owner is reported before an async command is acknowledged.
func (d *Device) Check(cmd device.Command) error {
	if err := d.Base.Check(cmd); err != nil {
		return err
	}
	return Probe(d.socketPath)
}

// Run sends cmd to the owner. It returns once the envelope is written;
// the owner's outcome is never reported back.
func (d *Device) Run(ctx context.Context, cmd device.Command) (any, error) {
	env, err := protocol.NewEnvelope(cmd)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOwnerUnavailable, d.Name(), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return nil, fmt.Errorf("setting write deadline: %w", err)
		}
	}

	if err := protocol.WriteMessage(conn, env, protocol.MaxSecondaryMessage); err != nil {
		return nil, fmt.Errorf("forwarding %s to %s: %w", cmd.Tag(), d.Name(), err)
	}
	return nil, nil
}

// Probe dials the owner's socket and hangs up. A socket file left behind
// by a dead owner refuses the connection and reports ErrOwnerUnavailable.
func Probe(path string) error {
	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOwnerUnavailable, err)
	}
	conn.Close()
	return nil
}

// WaitReady polls until the owner accepts connections or ctx is done.
func WaitReady(ctx context.Context, path string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := Probe(path)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", path, err)
		case <-ticker.C:
		}
	}
}
