package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/tophat-core/internal/codec"
)

// Factory returns a new command value ready to be decoded into.
//
// It must return a pointer, pre-filled with the command's default
// argument values; decoding overwrites only the fields present on the wire.
type Factory func() Command

// Validator is implemented by commands that check their decoded arguments.
type Validator interface {
	Validate() error
}

// Catalog is the closed command schema: every tag that may appear on a
// socket and how to build it. Decoding never instantiates a type that was
// not registered here.
//
// Catalogs are populated at startup and read concurrently afterwards.
type Catalog struct {
	mu      sync.RWMutex
	entries map[Tag]catalogEntry
}

type catalogEntry struct {
	kind    Kind
	factory Factory
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[Tag]catalogEntry)}
}

// Register adds command factories keyed by the tag of the value each returns.
// Registering a tag twice returns ErrCommandExists.
func (c *Catalog) Register(factories ...Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range factories {
		proto := f()
		tag := proto.Tag()
		if _, exists := c.entries[tag]; exists {
			return fmt.Errorf("%w: %s", ErrCommandExists, tag)
		}
		c.entries[tag] = catalogEntry{kind: proto.Kind(), factory: f}
	}
	return nil
}

// Kind returns the kind registered for tag.
func (c *Catalog) Kind(tag Tag) (Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[tag]
	return e.kind, ok
}

// Tags returns every registered tag in lexical order.
func (c *Catalog) Tags() []Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tags := make([]Tag, 0, len(c.entries))
	for t := range c.entries {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Decode builds the command registered for tag from CBOR-encoded arguments.
// Empty args leave the defaults in place.
func (c *Catalog) Decode(tag Tag, args []byte) (Command, error) {
	cmd, err := c.build(tag)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		if err := codec.Unmarshal(args, cmd); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, tag, err)
		}
	}
	return validate(tag, cmd)
}

// DecodeMap builds the command registered for tag from a key/value map.
func (c *Catalog) DecodeMap(tag Tag, args map[string]any) (Command, error) {
	cmd, err := c.build(tag)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		if err := codec.FromMap(args, cmd); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, tag, err)
		}
	}
	return validate(tag, cmd)
}

func (c *Catalog) build(tag Tag) (Command, error) {
	c.mu.RLock()
	e, ok := c.entries[tag]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, tag)
	}
	return e.factory(), nil
}

func validate(tag Tag, cmd Command) (Command, error) {
	if v, ok := cmd.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, tag, err)
		}
	}
	return cmd, nil
}
