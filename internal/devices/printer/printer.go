// Package printer implements the printer device type.
//
// The single command, printer.print, is asynchronous: the client is
// acknowledged at once while the printer waits out its warm-up delay
// and then emits the text.
package printer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
)

// DefaultDelay is the warm-up delay before output.
const DefaultDelay = 10 * time.Second

// TagPrint is the wire tag of Print.
const TagPrint device.Tag = "printer.print"

// Output is the printer's driver contract.
type Output interface {
	Print(ctx context.Context, text string) error
}

// Printer is a device that writes text after a fixed delay.
type Printer struct {
	device.Base
	out   Output
	delay time.Duration
}

// Tags is the capability set of a printer.
func Tags() device.TagSet {
	return device.NewTagSet(TagPrint)
}

// New creates a printer called name writing to out. A delay of zero or
// less selects DefaultDelay.
func New(name string, out Output, delay time.Duration) *Printer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Printer{
		Base:  device.NewBase(name, Tags()),
		out:   out,
		delay: delay,
	}
}

// Run executes cmd against the printer.
func (p *Printer) Run(ctx context.Context, cmd device.Command) (any, error) {
	return cmd.Run(ctx, p)
}

// Delay returns the configured warm-up delay.
func (p *Printer) Delay() time.Duration { return p.delay }

// Print outputs text after the printer's delay.
type Print struct {
	Output string `cbor:"output"`
}

func (c *Print) Tag() device.Tag   { return TagPrint }
func (c *Print) Kind() device.Kind { return device.KindAsync }

func (c *Print) Run(ctx context.Context, d device.Device) (any, error) {
	p, err := device.As[*Printer](d, c)
	if err != nil {
		return nil, err
	}
	if err := device.Sleep(ctx, p.delay); err != nil {
		return nil, err
	}
	return nil, p.out.Print(ctx, c.Output)
}

// RegisterCommands adds the printer commands to catalog.
func RegisterCommands(catalog *device.Catalog) error {
	return catalog.Register(
		func() device.Command { return &Print{} },
	)
}

// ConsoleOutput writes each printed text as a line to a writer.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput returns an Output writing to w.
func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

// Print writes text followed by a newline.
func (o *ConsoleOutput) Print(_ context.Context, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := fmt.Fprintln(o.w, text); err != nil {
		return fmt.Errorf("printing: %w", err)
	}
	return nil
}

// MemoryOutput records printed texts.
type MemoryOutput struct {
	mu      sync.Mutex
	printed []string
	notify  chan string
}

// NewMemoryOutput returns an empty MemoryOutput.
func NewMemoryOutput() *MemoryOutput {
	return &MemoryOutput{notify: make(chan string, 16)}
}

// Print records text.
func (o *MemoryOutput) Print(_ context.Context, text string) error {
	o.mu.Lock()
	o.printed = append(o.printed, text)
	o.mu.Unlock()

	select {
	case o.notify <- text:
	default:
	}
	return nil
}

// Printed returns a copy of everything printed so far.
func (o *MemoryOutput) Printed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.printed...)
}

// Notify delivers each printed text as it happens. Texts are dropped when
// nobody is receiving and the buffer is full.
func (o *MemoryOutput) Notify() <-chan string {
	return o.notify
}
