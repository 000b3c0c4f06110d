package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nerrad567/tophat-core/internal/codec"
)

// Channel limits in bytes of CBOR payload.
const (
	MaxPrimaryMessage   = 4096
	MaxSecondaryMessage = 512
)

const headerSize = 4

// WriteFrame writes payload with its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload of at most max bytes.
//
// An oversized frame is rejected from its header alone; the payload is
// not read.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, n, max)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteMessage encodes v as CBOR and writes it as one frame of at most max bytes.
func WriteMessage(w io.Writer, v any, max int) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %T: %w", v, err)
	}
	if len(payload) > max {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, len(payload), max)
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame of at most max bytes and decodes it into v.
func ReadMessage(r io.Reader, v any, max int) error {
	payload, err := ReadFrame(r, max)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
