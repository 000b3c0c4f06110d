package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/protocol"
)

// DefaultTimeout bounds a whole exchange when the context has no deadline.
// Sync commands such as nfc.read_data can block until it expires.
const DefaultTimeout = 30 * time.Second

// StatusError is returned by Do for any status other than SUCCESS.
type StatusError struct {
	Device  string
	Command device.Tag
	Status  protocol.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: %s on %s: %s", e.Command, e.Device, e.Status)
}

// Client talks to one control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
	maxMessage int
}

// New returns a client for socketPath.
func New(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    DefaultTimeout,
		maxMessage: protocol.MaxPrimaryMessage,
	}
}

// SetTimeout changes the per-exchange timeout used when ctx has no deadline.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SocketPath returns the control socket path.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Send encodes cmd for deviceName and returns the daemon's response.
func (c *Client) Send(ctx context.Context, deviceName string, cmd device.Command) (protocol.Response, error) {
	req, err := protocol.NewRequest(deviceName, cmd)
	if err != nil {
		return protocol.Response{}, err
	}
	return c.SendRequest(ctx, req)
}

// SendRequest sends a prepared request and returns the response.
//
// Dial and write failures, and a connection closed before any response,
// are errors. A response that arrives but cannot be decoded, or that
// carries an undefined status, is returned as ERROR_UNKNOWN.
func (c *Client) SendRequest(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return protocol.Response{}, fmt.Errorf("setting deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now()) //nolint:errcheck // unblocks pending I/O on cancellation
	})
	defer stop()

	if err := protocol.WriteMessage(conn, req, c.maxMessage); err != nil {
		return protocol.Response{}, fmt.Errorf("sending request: %w", err)
	}

	var resp protocol.Response
	err = protocol.ReadMessage(conn, &resp, c.maxMessage)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrMalformed), errors.Is(err, protocol.ErrFrameTooLarge), errors.Is(err, protocol.ErrEmptyFrame):
		return protocol.Failure(protocol.StatusUnknown), nil
	case ctx.Err() != nil:
		return protocol.Response{}, fmt.Errorf("waiting for response: %w", ctx.Err())
	default:
		return protocol.Response{}, fmt.Errorf("reading response: %w", err)
	}

	// The daemon half-closes after the response; read to EOF so the
	// connection is torn down cleanly.
	io.Copy(io.Discard, conn) //nolint:errcheck // response already read

	if !resp.Status.Valid() {
		return protocol.Failure(protocol.StatusUnknown), nil
	}
	return resp, nil
}

// Do sends cmd and decodes a SUCCESS result into result, which may be nil.
// Any other status is returned as *StatusError.
func (c *Client) Do(ctx context.Context, deviceName string, cmd device.Command, result any) error {
	resp, err := c.Send(ctx, deviceName, cmd)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusSuccess {
		return &StatusError{Device: deviceName, Command: cmd.Tag(), Status: resp.Status}
	}
	if result == nil {
		return nil
	}
	return resp.Decode(result)
}
