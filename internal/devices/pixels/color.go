package pixels

import "fmt"

// Color is an RGB triple. On the wire it is a three-element array.
type Color struct {
	_ struct{} `cbor:",toarray"`
	R uint8
	G uint8
	B uint8
}

// Off is the blank color.
var Off = Color{}

// RGB builds a Color.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// String returns the color as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Scale returns c with each channel multiplied by brightness in [0, 1].
func (c Color) Scale(brightness float64) Color {
	switch {
	case brightness <= 0:
		return Off
	case brightness >= 1:
		return c
	}
	return Color{
		R: uint8(float64(c.R) * brightness),
		G: uint8(float64(c.G) * brightness),
		B: uint8(float64(c.B) * brightness),
	}
}

// Rainbow cycle geometry. Each channel ramps 0→254, then 255→0, then
// stays dark for rainbowBlanks steps; the three channels are offset by a
// third of rainbowSpan.
const (
	rainbowRamp   = 255
	rainbowBlanks = 255
	rainbowSpan   = 765
	rainbowPeriod = rainbowRamp + (rainbowRamp + 1) + rainbowBlanks
)

// channelLevel returns a channel's level at step i of its cycle.
func channelLevel(i int) uint8 {
	i %= rainbowPeriod
	switch {
	case i < rainbowRamp:
		return uint8(i)
	case i < 2*rainbowRamp+1:
		return uint8(2*rainbowRamp - i)
	default:
		return 0
	}
}

// Wheel steps through the RGB color cycle.
type Wheel struct {
	r, g, b int
}

// NewWheel returns a generator starting at offset start, clamped to [0, 765].
func NewWheel(start int) *Wheel {
	if start < 0 {
		start = 0
	}
	if start > rainbowSpan {
		start = rainbowSpan
	}
	return &Wheel{
		r: start,
		g: (start + rainbowRamp) % rainbowSpan,
		b: (start + 2*rainbowRamp) % rainbowSpan,
	}
}

// Next returns the current color and advances one step.
func (g *Wheel) Next() Color {
	c := RGB(channelLevel(g.r), channelLevel(g.g), channelLevel(g.b))
	g.r = (g.r + 1) % rainbowPeriod
	g.g = (g.g + 1) % rainbowPeriod
	g.b = (g.b + 1) % rainbowPeriod
	return c
}
