// Package switches implements the digital switch device type.
package switches

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nerrad567/tophat-core/internal/device"
)

// Wire tags of the switch commands.
const (
	TagEnable  device.Tag = "switch.enable"
	TagDisable device.Tag = "switch.disable"
	TagToggle  device.Tag = "switch.toggle"
	TagState   device.Tag = "switch.state"
)

// Pin is the switch's driver contract: one digital output line.
type Pin interface {
	Read() (bool, error)
	Write(on bool) error
}

// Switch is a device driving one digital output.
type Switch struct {
	device.Base
	pin Pin
}

// Tags is the capability set of a switch.
func Tags() device.TagSet {
	return device.NewTagSet(TagEnable, TagDisable, TagToggle, TagState)
}

// New creates a switch called name on pin.
func New(name string, pin Pin) *Switch {
	return &Switch{
		Base: device.NewBase(name, Tags()),
		pin:  pin,
	}
}

// Run executes cmd against the switch.
func (s *Switch) Run(ctx context.Context, cmd device.Command) (any, error) {
	return cmd.Run(ctx, s)
}

func (s *Switch) set(on bool) error {
	if err := s.pin.Write(on); err != nil {
		return fmt.Errorf("writing %s: %w", s.Name(), err)
	}
	return nil
}

// Enable drives the output high.
type Enable struct{}

func (Enable) Tag() device.Tag   { return TagEnable }
func (Enable) Kind() device.Kind { return device.KindAsync }

func (c *Enable) Run(_ context.Context, d device.Device) (any, error) {
	s, err := device.As[*Switch](d, c)
	if err != nil {
		return nil, err
	}
	return nil, s.set(true)
}

// Disable drives the output low.
type Disable struct{}

func (Disable) Tag() device.Tag   { return TagDisable }
func (Disable) Kind() device.Kind { return device.KindAsync }

func (c *Disable) Run(_ context.Context, d device.Device) (any, error) {
	s, err := device.As[*Switch](d, c)
	if err != nil {
		return nil, err
	}
	return nil, s.set(false)
}

// Toggle inverts the output.
type Toggle struct{}

func (Toggle) Tag() device.Tag   { return TagToggle }
func (Toggle) Kind() device.Kind { return device.KindAsync }

func (c *Toggle) Run(_ context.Context, d device.Device) (any, error) {
	s, err := device.As[*Switch](d, c)
	if err != nil {
		return nil, err
	}
	on, err := s.pin.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Name(), err)
	}
	return nil, s.set(!on)
}

// State returns the current output level.
type State struct{}

func (State) Tag() device.Tag   { return TagState }
func (State) Kind() device.Kind { return device.KindSync }

func (c *State) Run(_ context.Context, d device.Device) (any, error) {
	s, err := device.As[*Switch](d, c)
	if err != nil {
		return nil, err
	}
	on, err := s.pin.Read()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Name(), err)
	}
	return on, nil
}

// RegisterCommands adds the switch commands to catalog.
func RegisterCommands(catalog *device.Catalog) error {
	return catalog.Register(
		func() device.Command { return &Enable{} },
		func() device.Command { return &Disable{} },
		func() device.Command { return &Toggle{} },
		func() device.Command { return &State{} },
	)
}

// MemoryPin holds the output level in memory.
type MemoryPin struct {
	mu sync.Mutex
	on bool
}

// NewMemoryPin returns a pin that starts low.
func NewMemoryPin() *MemoryPin {
	return &MemoryPin{}
}

// Read returns the level.
func (p *MemoryPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on, nil
}

// Write sets the level.
func (p *MemoryPin) Write(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = on
	return nil
}

// ConsolePin is a MemoryPin that also reports every level change to a writer.
type ConsolePin struct {
	MemoryPin
	number int
	w      io.Writer
}

// NewConsolePin returns a pin numbered number that logs writes to w.
func NewConsolePin(number int, w io.Writer) *ConsolePin {
	return &ConsolePin{number: number, w: w}
}

// Write sets the level and reports it.
func (p *ConsolePin) Write(on bool) error {
	if err := p.MemoryPin.Write(on); err != nil {
		return err
	}
	level := "low"
	if on {
		level = "high"
	}
	_, err := fmt.Fprintf(p.w, "pin %d %s\n", p.number, level)
	return err
}
