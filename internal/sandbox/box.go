package sandbox

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Options control how every box runs its hat.
type Options struct {
	// CPUPercent caps each container at this share of the host's CPUs.
	CPUPercent int

	// SocketDir is the host directory holding the control socket.
	SocketDir string

	// MountPath is where SocketDir appears inside the container.
	MountPath string

	// StopTimeout is the grace period before a stopping container is killed.
	StopTimeout time.Duration
}

// DefaultOptions returns the standard box options for socketDir.
func DefaultOptions(socketDir string) Options {
	return Options{
		CPUPercent:  25,
		SocketDir:   socketDir,
		MountPath:   MountPath,
		StopTimeout: 8 * time.Second,
	}
}

// cpus converts a percentage of the host to a --cpus value.
func (o Options) cpus() float64 {
	if o.CPUPercent <= 0 {
		return 0
	}
	return float64(runtime.NumCPU()) * float64(o.CPUPercent) / 100
}

// Box runs one hat in one container.
type Box struct {
	hat    Hat
	rt     Runtime
	opts   Options
	logger Logger

	mu        sync.Mutex
	id        string
	lastError error
}

func newBox(h Hat, rt Runtime, opts Options, logger Logger) *Box {
	return &Box{hat: h, rt: rt, opts: opts, logger: logger}
}

// Hat returns the boxed hat.
func (b *Box) Hat() Hat {
	return b.hat
}

// Start runs the hat's container. It reports false, and logs why, when
// the container could not be started.
func (b *Box) Start(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.id != "" {
		return true
	}

	spec := RunSpec{
		Name:  "tophat-" + b.hat.Name(),
		Image: b.hat.Image(),
		CPUs:  b.opts.cpus(),
		Mounts: []Mount{{
			Source: b.opts.SocketDir,
			Target: b.opts.MountPath,
		}},
		Args: b.hat.LaunchArgs(),
	}

	id, err := b.rt.Run(ctx, spec)
	if err != nil {
		b.lastError = err
		b.logger.Error("hat failed to start",
			"hat", b.hat.Name(),
			"image", b.hat.Image(),
			"engine", b.rt.Engine(),
			"error", err,
		)
		return false
	}

	b.id = id
	b.lastError = nil
	b.logger.Info("hat started",
		"hat", b.hat.Name(),
		"image", b.hat.Image(),
		"container", shortID(id),
		"cpus", spec.CPUs,
	)
	return true
}

// Stop stops the container if one is running. Calling it again is a no-op.
func (b *Box) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.id == "" {
		return nil
	}

	id := b.id
	b.id = ""

	if err := b.rt.Stop(ctx, id, b.opts.StopTimeout); err != nil {
		b.lastError = err
		return fmt.Errorf("stopping hat %s: %w", b.hat.Name(), err)
	}
	b.logger.Info("hat stopped", "hat", b.hat.Name(), "container", shortID(id))
	return nil
}

// HatStatus describes a box for status reporting.
type HatStatus struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Running     bool   `json:"running"`
	ContainerID string `json:"container_id,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// Status returns the box's current state.
func (b *Box) Status() HatStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := HatStatus{
		Name:        b.hat.Name(),
		Image:       b.hat.Image(),
		Running:     b.id != "",
		ContainerID: shortID(b.id),
	}
	if b.lastError != nil {
		s.LastError = b.lastError.Error()
	}
	return s
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
