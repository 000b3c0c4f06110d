package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface for the sandbox.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager owns the boxes for every registered hat.
type Manager struct {
	rt     Runtime
	opts   Options
	logger Logger

	mu      sync.Mutex
	boxes   []*Box
	names   map[string]struct{}
	started bool
}

// NewManager returns a Manager running hats on rt.
func NewManager(rt Runtime, opts Options) *Manager {
	return &Manager{
		rt:     rt,
		opts:   opts,
		logger: noopLogger{},
		names:  make(map[string]struct{}),
	}
}

// SetLogger sets the logger for the manager and its boxes.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Register adds a hat. Names must be unique and registration closes at StartAll.
func (m *Manager) Register(h Hat) error {
	if h.Name() == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidHat)
	}
	if err := checkLaunchArgs(h); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("registering hat %q: %w", h.Name(), ErrManagerStarted)
	}
	if _, exists := m.names[h.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrHatExists, h.Name())
	}

	m.names[h.Name()] = struct{}{}
	m.boxes = append(m.boxes, newBox(h, m.rt, m.opts, m.logger))
	m.logger.Debug("hat registered", "hat", h.Name(), "image", h.Image())
	return nil
}

// StartAll starts every box in registration order and returns whether
// each hat started, keyed by name.
func (m *Manager) StartAll(ctx context.Context) map[string]bool {
	m.mu.Lock()
	m.started = true
	boxes := append([]*Box(nil), m.boxes...)
	m.mu.Unlock()

	outcome := make(map[string]bool, len(boxes))
	running := 0
	for _, b := range boxes {
		ok := b.Start(ctx)
		outcome[b.Hat().Name()] = ok
		if ok {
			running++
		}
	}

	m.logger.Info("hats started", "running", running, "registered", len(boxes))
	return outcome
}

// StopAll stops every box, whatever its state, then closes the runtime.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	boxes := append([]*Box(nil), m.boxes...)
	m.mu.Unlock()

	var errs []error
	for _, b := range boxes {
		if err := b.Stop(ctx); err != nil {
			m.logger.Warn("hat did not stop cleanly", "hat", b.Hat().Name(), "error", err)
			errs = append(errs, err)
		}
	}
	if err := m.rt.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %s runtime: %w", m.rt.Engine(), err))
	}
	return errors.Join(errs...)
}

// Status returns the state of every box in registration order.
func (m *Manager) Status() []HatStatus {
	m.mu.Lock()
	boxes := append([]*Box(nil), m.boxes...)
	m.mu.Unlock()

	statuses := make([]HatStatus, 0, len(boxes))
	for _, b := range boxes {
		statuses = append(statuses, b.Status())
	}
	return statuses
}
