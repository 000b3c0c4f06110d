package protocol

import (
	"fmt"

	"github.com/nerrad567/tophat-core/internal/codec"
	"github.com/nerrad567/tophat-core/internal/device"
)

// Envelope carries a command from a proxy device to its owner process.
//
// The kwargs are the command's own fields as a flat key/value map, keyed
// by their CBOR names.
type Envelope struct {
	CommandType   device.Tag     `cbor:"command_type"`
	CommandKwargs map[string]any `cbor:"command_kwargs"`
}

// NewEnvelope flattens cmd into an Envelope.
func NewEnvelope(cmd device.Command) (Envelope, error) {
	kwargs, err := codec.ToMap(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("flattening %s: %w", cmd.Tag(), err)
	}
	return Envelope{CommandType: cmd.Tag(), CommandKwargs: kwargs}, nil
}

// Command rebuilds the command through catalog. Only registered tags decode.
func (e Envelope) Command(catalog *device.Catalog) (device.Command, error) {
	if e.CommandType == "" {
		return nil, fmt.Errorf("%w: missing command_type", ErrMalformed)
	}
	return catalog.DecodeMap(e.CommandType, e.CommandKwargs)
}
