package sandbox

import (
	"context"
	"time"
)

// Mount binds a host path into a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one detached, auto-removed container.
type RunSpec struct {
	Name   string
	Image  string
	CPUs   float64
	Mounts []Mount
	Args   map[string]string
}

// Runtime starts and stops containers.
type Runtime interface {
	// Engine names the container engine, for logs.
	Engine() string

	// Run starts a detached, auto-removed container and returns its ID.
	Run(ctx context.Context, spec RunSpec) (string, error)

	// Stop asks the container to exit, killing it after timeout.
	Stop(ctx context.Context, id string, timeout time.Duration) error

	// Close releases the runtime's resources.
	Close() error
}
