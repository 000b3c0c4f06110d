// Package codec provides the CBOR encoding used on every TopHat socket.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// command always produces identical bytes, which keeps audit records and
// test fixtures stable.
//
// Decoding into any-typed targets produces map[string]any, never
// map[any]any, so command arguments can be handed to code that expects
// string keys.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrNotMap is returned by ToMap when a value does not encode as a CBOR map.
var ErrNotMap = errors.New("codec: value does not encode as a map")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Requests are tiny; anything deeper is malformed.
		MaxNestedLevels: 16,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is a raw encoded CBOR value used to delay decoding.
type RawMessage = cbor.RawMessage

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// ToMap flattens v into its CBOR key/value form.
//
// Struct fields are keyed by their cbor tag names. Nested values come back
// as the generic types the decoder picks for any targets (uint64, int64,
// float64, string, []any, map[string]any).
func ToMap(v any) (map[string]any, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}

	var m map[string]any
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %T", ErrNotMap, v)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// FromMap fills v (a pointer) from a key/value map produced by ToMap.
func FromMap(m map[string]any, v any) error {
	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding map: %w", err)
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding into %T: %w", v, err)
	}
	return nil
}
