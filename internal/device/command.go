package device

import (
	"context"
	"sort"
)

// Tag identifies a command variant on the wire, e.g. "pixels.blink".
type Tag string

// Kind distinguishes commands whose result is returned to the client from
// commands that are acknowledged immediately.
type Kind int

const (
	// KindSync commands are awaited; their result is sent to the client.
	KindSync Kind = iota + 1

	// KindAsync commands are acknowledged at submission; their result is discarded.
	KindAsync
)

// String returns the lowercase kind name used in logs and events.
func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Command is an immutable unit of work addressed to one device.
//
// Run is the only place driver-specific logic lives. It receives the
// concrete device and must type-assert it to the device type it targets.
// Implementations must be CBOR-encodable structs: the encoded field layout
// is the command's argument map on both sockets.
type Command interface {
	Tag() Tag
	Kind() Kind
	Run(ctx context.Context, d Device) (any, error)
}

// TagSet is a fixed set of command tags a device accepts.
type TagSet map[Tag]struct{}

// NewTagSet builds a TagSet from tags.
func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// Sorted returns the tags in lexical order.
func (s TagSet) Sorted() []Tag {
	tags := make([]Tag, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
