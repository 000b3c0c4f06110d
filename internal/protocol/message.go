package protocol

import (
	"fmt"

	"github.com/nerrad567/tophat-core/internal/codec"
	"github.com/nerrad567/tophat-core/internal/device"
)

// Request addresses one command to one device.
type Request struct {
	Device  string       `cbor:"device"`
	Command CommandFrame `cbor:"command"`
}

// CommandFrame is a command as it appears on the primary channel.
type CommandFrame struct {
	Type device.Tag       `cbor:"type"`
	Args codec.RawMessage `cbor:"args,omitempty"`
}

// Response is the single reply to a Request.
type Response struct {
	Status Status           `cbor:"status"`
	Result codec.RawMessage `cbor:"result,omitempty"`
}

// NewRequest encodes cmd for deviceName.
func NewRequest(deviceName string, cmd device.Command) (Request, error) {
	args, err := codec.Marshal(cmd)
	if err != nil {
		return Request{}, fmt.Errorf("encoding %s arguments: %w", cmd.Tag(), err)
	}
	return Request{
		Device:  deviceName,
		Command: CommandFrame{Type: cmd.Tag(), Args: args},
	}, nil
}

// Validate checks the fields every request must carry.
func (r Request) Validate() error {
	if r.Device == "" {
		return fmt.Errorf("%w: missing device", ErrMalformed)
	}
	if r.Command.Type == "" {
		return fmt.Errorf("%w: missing command type", ErrMalformed)
	}
	return nil
}

// DecodeCommand resolves the request's command through catalog.
func (r Request) DecodeCommand(catalog *device.Catalog) (device.Command, error) {
	return catalog.Decode(r.Command.Type, r.Command.Args)
}

// Success returns a SUCCESS response carrying result. A nil result is omitted.
func Success(result any) (Response, error) {
	if result == nil {
		return Response{Status: StatusSuccess}, nil
	}
	raw, err := codec.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("encoding result: %w", err)
	}
	return Response{Status: StatusSuccess, Result: raw}, nil
}

// Failure returns a response with status and no result.
func Failure(status Status) Response {
	return Response{Status: status}
}

// Decode unmarshals the result into v. It is a no-op when the response
// carries no result.
func (r Response) Decode(v any) error {
	if len(r.Result) == 0 {
		return nil
	}
	if err := codec.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("%w: result: %v", ErrMalformed, err)
	}
	return nil
}
