// Package protocol defines the messages exchanged on TopHat's sockets and
// how they are framed.
//
// # Channels
//
// The primary channel is the daemon's control socket. A client connects,
// writes one Request, and reads exactly one Response; the server then
// half-closes the connection. The secondary channel links a proxy device
// to its owner process and carries a single Envelope per connection with
// no reply.
//
// # Framing
//
// Every message is a 4-byte big-endian length followed by that many bytes
// of CBOR. Readers enforce a per-channel maximum and reject larger frames
// with ErrFrameTooLarge before reading the payload.
//
//	┌────────────┬─────────────────────────────┐
//	│ len uint32 │ CBOR payload (len bytes)    │
//	└────────────┴─────────────────────────────┘
//
// # Schema
//
//	Request  = {device: text, command: {type: text, args: map}}
//	Response = {status: uint, result?: any}
//	Envelope = {command_type: text, command_kwargs: map}
//
// Command types are resolved through a device.Catalog; a tag that is not
// registered fails to decode.
package protocol
