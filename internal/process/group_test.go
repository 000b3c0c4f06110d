package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGroup(t *testing.T) {
	g := NewGroup()
	good := NewManager(Config{Name: "strip", Binary: "/bin/sleep", Args: []string{"60"}, GracefulTimeout: 2 * time.Second})
	bad := NewManager(Config{Name: "ghost", Binary: "/nonexistent/owner"})

	if err := g.Add(good); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := g.Add(bad); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := g.Add(NewManager(Config{Name: "strip", Binary: "/bin/true"})); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate Add() error = %v, want ErrDuplicate", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}

	err := g.StartAll(context.Background())
	if err == nil {
		t.Fatal("StartAll() should report the missing binary")
	}
	if !good.IsRunning() {
		t.Error("a failing owner stopped the others from starting")
	}

	if m, ok := g.Get("strip"); !ok || m != good {
		t.Error("Get(strip) did not return the manager")
	}

	stats := g.Stats()
	if len(stats) != 2 || stats[0].Status != StatusRunning || stats[1].Status != StatusFailed {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := g.StopAll(); err != nil {
		t.Errorf("StopAll() error = %v", err)
	}
	if good.Status() != StatusStopped {
		t.Errorf("strip status = %s, want stopped", good.Status())
	}
}
