package device

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Entry pairs a registered device with its private lock.
type Entry struct {
	Device Device
	Lock   *Lock
}

// Registry maps device names to devices and their locks.
//
// Devices are registered during startup. Once Seal is called the set is
// fixed: further registrations fail with ErrRegistrySealed and lookups
// need no coordination beyond the read lock.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	sealed  bool
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds d under d.Name() with a fresh lock.
//
// Returns ErrInvalidName for an empty name, ErrDeviceExists for a
// duplicate, and ErrRegistrySealed after Seal.
func (r *Registry) Register(d Device) error {
	name := d.Name()
	if name == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registering %q: %w", name, ErrRegistrySealed)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("registering %q: %w", name, ErrDeviceExists)
	}

	r.entries[name] = Entry{Device: d, Lock: NewLock()}
	r.logger.Debug("device registered", "device", name, "commands", len(d.SupportedCommands()))
	return nil
}

// Seal fixes the registered set. It is idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sealed {
		r.sealed = true
		r.logger.Info("device registry sealed", "count", len(r.entries))
	}
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the entry for name.
// Returns ErrDeviceNotFound if no device has that name.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return e, nil
}

// List returns all entries ordered by device name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Device.Name() < entries[j].Device.Name()
	})
	return entries
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
