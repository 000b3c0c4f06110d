package pixels

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Strip is the pixel strip driver contract.
//
// Fill, Set and SetBrightness change a frame buffer; Show pushes it to
// the LEDs. Brightness scales every pixel when shown.
type Strip interface {
	Len() int
	Fill(c Color)
	Set(i int, c Color)
	SetBrightness(b float64)
	Show() error
}

// MemoryStrip keeps the frame buffer and the last shown frame in memory.
type MemoryStrip struct {
	mu         sync.Mutex
	buffer     []Color
	shown      []Color
	brightness float64
	shows      int
}

// NewMemoryStrip returns a blank strip of n pixels at full brightness.
func NewMemoryStrip(n int) *MemoryStrip {
	return &MemoryStrip{
		buffer:     make([]Color, n),
		shown:      make([]Color, n),
		brightness: 1,
	}
}

// Len returns the pixel count.
func (s *MemoryStrip) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Fill sets every pixel to c.
func (s *MemoryStrip) Fill(c Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buffer {
		s.buffer[i] = c
	}
}

// Set sets pixel i to c. Out-of-range indices are ignored.
func (s *MemoryStrip) Set(i int, c Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.buffer) {
		s.buffer[i] = c
	}
}

// SetBrightness sets the global brightness, clamped to [0, 1].
func (s *MemoryStrip) SetBrightness(b float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brightness = clamp01(b)
}

// Show copies the frame buffer, scaled by brightness, to the shown frame.
func (s *MemoryStrip) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.buffer {
		s.shown[i] = c.Scale(s.brightness)
	}
	s.shows++
	return nil
}

// Shown returns a copy of the last shown frame.
func (s *MemoryStrip) Shown() []Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Color(nil), s.shown...)
}

// Shows returns how many times Show has been called.
func (s *MemoryStrip) Shows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows
}

// ConsoleStrip is a MemoryStrip that writes each distinct shown frame to a writer.
type ConsoleStrip struct {
	*MemoryStrip
	mu   sync.Mutex
	w    io.Writer
	last string
}

// NewConsoleStrip returns a strip of n pixels printing frames to w.
func NewConsoleStrip(n int, w io.Writer) *ConsoleStrip {
	return &ConsoleStrip{MemoryStrip: NewMemoryStrip(n), w: w}
}

// Show updates the shown frame and prints it when it changed.
func (s *ConsoleStrip) Show() error {
	if err := s.MemoryStrip.Show(); err != nil {
		return err
	}

	frame := s.Shown()
	parts := make([]string, len(frame))
	for i, c := range frame {
		parts[i] = c.String()
	}
	line := strings.Join(parts, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	if line == s.last {
		return nil
	}
	s.last = line
	if _, err := fmt.Fprintln(s.w, line); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
