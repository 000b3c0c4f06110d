// Package pixels implements the addressable LED strip device type.
//
// Every command is asynchronous. Animated commands run for a bounded
// duration in seconds (zero means until cancelled) and always leave the
// strip blank when they end.
package pixels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
)

// Wire tags of the pixel commands.
const (
	TagSolidColor  device.Tag = "pixels.solid_color"
	TagBlink       device.Tag = "pixels.blink"
	TagPulse       device.Tag = "pixels.pulse"
	TagRainbow     device.Tag = "pixels.rainbow"
	TagRainbowWave device.Tag = "pixels.rainbow_wave"
)

// Default animation frequencies in Hz.
const (
	DefaultBlinkFrequency       = 2
	DefaultPulseFrequency       = 2
	DefaultRainbowFrequency     = 200
	DefaultRainbowWaveFrequency = 10
)

// pulseSteps is the brightness resolution of one half of a pulse.
const pulseSteps = 1000

// frameInterval bounds how often time-driven animations redraw.
const frameInterval = 10 * time.Millisecond

// Tags is the capability set of a pixel strip.
func Tags() device.TagSet {
	return device.NewTagSet(TagSolidColor, TagBlink, TagPulse, TagRainbow, TagRainbowWave)
}

// Pixels is a device driving one LED strip.
type Pixels struct {
	device.Base
	strip Strip
}

// New creates a pixel device called name on strip.
func New(name string, strip Strip) *Pixels {
	return &Pixels{
		Base:  device.NewBase(name, Tags()),
		strip: strip,
	}
}

// Run executes cmd against the strip.
func (p *Pixels) Run(ctx context.Context, cmd device.Command) (any, error) {
	return cmd.Run(ctx, p)
}

func (p *Pixels) show(c Color) error {
	p.strip.Fill(c)
	return p.strip.Show()
}

// blank turns the strip off and restores full brightness.
func (p *Pixels) blank() error {
	p.strip.SetBrightness(1)
	return p.show(Off)
}

// animate runs frame for duration, then blanks the strip.
func (p *Pixels) animate(ctx context.Context, duration float64, frame func(ctx context.Context) error) error {
	err := device.RunFor(ctx, device.Seconds(duration), frame)
	if blankErr := p.blank(); blankErr != nil {
		return errors.Join(err, fmt.Errorf("blanking %s: %w", p.Name(), blankErr))
	}
	return err
}

// SolidColor fills the strip with one color.
type SolidColor struct {
	Color Color `cbor:"color"`
}

func (c *SolidColor) Tag() device.Tag   { return TagSolidColor }
func (c *SolidColor) Kind() device.Kind { return device.KindAsync }

func (c *SolidColor) Run(_ context.Context, d device.Device) (any, error) {
	p, err := device.As[*Pixels](d, c)
	if err != nil {
		return nil, err
	}
	p.strip.SetBrightness(1)
	return nil, p.show(c.Color)
}

// Blink alternates between a color and off.
type Blink struct {
	Duration  float64 `cbor:"duration"`
	Color     Color   `cbor:"color"`
	Frequency float64 `cbor:"frequency"`
}

func (c *Blink) Tag() device.Tag   { return TagBlink }
func (c *Blink) Kind() device.Kind { return device.KindAsync }

func (c *Blink) Validate() error {
	return validateTiming(c.Duration, c.Frequency)
}

func (c *Blink) Run(ctx context.Context, d device.Device) (any, error) {
	p, err := device.As[*Pixels](d, c)
	if err != nil {
		return nil, err
	}
	half := time.Duration(float64(time.Second) / c.Frequency / 2)

	return nil, p.animate(ctx, c.Duration, func(ctx context.Context) error {
		for {
			if err := p.show(c.Color); err != nil {
				return err
			}
			if err := device.Sleep(ctx, half); err != nil {
				return err
			}
			if err := p.show(Off); err != nil {
				return err
			}
			if err := device.Sleep(ctx, half); err != nil {
				return err
			}
		}
	})
}

// Pulse fades a color up and down.
//
// One pulse lasts 1/Frequency seconds, followed by Blanks dark steps of
// the same length as one brightness step.
type Pulse struct {
	Duration  float64 `cbor:"duration"`
	Color     Color   `cbor:"color"`
	Frequency float64 `cbor:"frequency"`
	Blanks    int     `cbor:"blanks"`
}

func (c *Pulse) Tag() device.Tag   { return TagPulse }
func (c *Pulse) Kind() device.Kind { return device.KindAsync }

func (c *Pulse) Validate() error {
	if c.Blanks < 0 {
		return errors.New("blanks must not be negative")
	}
	return validateTiming(c.Duration, c.Frequency)
}

// brightness returns the pulse brightness at elapsed time since start.
func (c *Pulse) brightness(elapsed time.Duration) float64 {
	pulse := 1 / c.Frequency
	step := pulse / (2 * pulseSteps)
	period := pulse + float64(c.Blanks)*step

	phase := math.Mod(elapsed.Seconds(), period)
	if phase >= pulse {
		return 0
	}
	half := pulse / 2
	if phase < half {
		return phase / half
	}
	return (pulse - phase) / half
}

func (c *Pulse) Run(ctx context.Context, d device.Device) (any, error) {
	p, err := device.As[*Pixels](d, c)
	if err != nil {
		return nil, err
	}

	return nil, p.animate(ctx, c.Duration, func(ctx context.Context) error {
		p.strip.Fill(c.Color)
		start := time.Now()
		for {
			p.strip.SetBrightness(c.brightness(time.Since(start)))
			if err := p.strip.Show(); err != nil {
				return err
			}
			if err := device.Sleep(ctx, frameInterval); err != nil {
				return err
			}
		}
	})
}

// Rainbow cycles the whole strip through the color wheel.
type Rainbow struct {
	Duration  float64 `cbor:"duration"`
	Frequency float64 `cbor:"frequency"`
}

func (c *Rainbow) Tag() device.Tag   { return TagRainbow }
func (c *Rainbow) Kind() device.Kind { return device.KindAsync }

func (c *Rainbow) Validate() error {
	return validateTiming(c.Duration, c.Frequency)
}

func (c *Rainbow) Run(ctx context.Context, d device.Device) (any, error) {
	p, err := device.As[*Pixels](d, c)
	if err != nil {
		return nil, err
	}
	step := time.Duration(float64(time.Second) / c.Frequency)

	return nil, p.animate(ctx, c.Duration, func(ctx context.Context) error {
		wheel := NewWheel(0)
		for {
			if err := p.show(wheel.Next()); err != nil {
				return err
			}
			if err := device.Sleep(ctx, step); err != nil {
				return err
			}
		}
	})
}

// RainbowWave runs the color wheel along the strip, each pixel offset
// from its neighbour.
type RainbowWave struct {
	Duration  float64 `cbor:"duration"`
	Frequency float64 `cbor:"frequency"`
}

func (c *RainbowWave) Tag() device.Tag   { return TagRainbowWave }
func (c *RainbowWave) Kind() device.Kind { return device.KindAsync }

func (c *RainbowWave) Validate() error {
	return validateTiming(c.Duration, c.Frequency)
}

func (c *RainbowWave) Run(ctx context.Context, d device.Device) (any, error) {
	p, err := device.As[*Pixels](d, c)
	if err != nil {
		return nil, err
	}
	n := p.strip.Len()
	if n == 0 {
		return nil, nil
	}
	step := time.Duration(float64(time.Second) / c.Frequency)

	return nil, p.animate(ctx, c.Duration, func(ctx context.Context) error {
		offset := rainbowSpan / n
		wheels := make([]*Wheel, n)
		for i := range wheels {
			wheels[i] = NewWheel(offset * i)
		}
		for {
			if err := device.Sleep(ctx, step); err != nil {
				return err
			}
			for i, w := range wheels {
				p.strip.Set(i, w.Next())
			}
			if err := p.strip.Show(); err != nil {
				return err
			}
		}
	})
}

func validateTiming(duration, frequency float64) error {
	if duration < 0 {
		return errors.New("duration must not be negative")
	}
	if frequency <= 0 {
		return errors.New("frequency must be positive")
	}
	return nil
}

// RegisterCommands adds the pixel commands to catalog.
func RegisterCommands(catalog *device.Catalog) error {
	return catalog.Register(
		func() device.Command { return &SolidColor{} },
		func() device.Command { return &Blink{Frequency: DefaultBlinkFrequency} },
		func() device.Command { return &Pulse{Frequency: DefaultPulseFrequency} },
		func() device.Command { return &Rainbow{Frequency: DefaultRainbowFrequency} },
		func() device.Command { return &RainbowWave{Frequency: DefaultRainbowWaveFrequency} },
	)
}
