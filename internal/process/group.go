package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Group supervises the owner processes of every managed proxy device.
// Processes start in the order added and stop in reverse.
type Group struct {
	mu       sync.RWMutex
	managers []*Manager
	byName   map[string]*Manager
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{byName: make(map[string]*Manager)}
}

// Add appends m. Names must be unique.
func (g *Group) Add(m *Manager) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byName[m.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, m.Name())
	}
	g.managers = append(g.managers, m)
	g.byName[m.Name()] = m
	return nil
}

// Get returns the manager named name.
func (g *Group) Get(name string) (*Manager, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.byName[name]
	return m, ok
}

// Len returns the number of managers.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.managers)
}

// StartAll starts every process and waits for each to become ready.
// A failure does not stop the remaining processes from starting; the
// failures are joined in the returned error.
func (g *Group) StartAll(ctx context.Context) error {
	var errs []error
	for _, m := range g.snapshot() {
		if err := m.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("starting %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every process in reverse start order.
func (g *Group) StopAll() error {
	managers := g.snapshot()
	var errs []error
	for i := len(managers) - 1; i >= 0; i-- {
		if err := managers[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of every process in start order.
func (g *Group) Stats() []Stats {
	managers := g.snapshot()
	stats := make([]Stats, 0, len(managers))
	for _, m := range managers {
		stats = append(stats, m.Stats())
	}
	return stats
}

func (g *Group) snapshot() []*Manager {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Manager(nil), g.managers...)
}
