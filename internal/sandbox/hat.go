package sandbox

import (
	"fmt"
	"maps"
)

// MountPath is where the control socket directory appears inside a hat.
const MountPath = "/var/run/tophat"

// Hat is an application image run next to the daemon.
type Hat interface {
	Name() string
	Image() string

	// LaunchArgs are extra container options, merged into the run
	// invocation as --key=value.
	LaunchArgs() map[string]string
}

type staticHat struct {
	name  string
	image string
	args  map[string]string
}

// NewHat returns a Hat with fixed fields.
func NewHat(name, image string, launchArgs map[string]string) Hat {
	return &staticHat{name: name, image: image, args: maps.Clone(launchArgs)}
}

func (h *staticHat) Name() string                  { return h.name }
func (h *staticHat) Image() string                 { return h.image }
func (h *staticHat) LaunchArgs() map[string]string { return maps.Clone(h.args) }

// reservedArgs are options the box sets itself.
var reservedArgs = map[string]struct{}{
	"name":   {},
	"detach": {},
	"d":      {},
	"rm":     {},
	"cpus":   {},
	"volume": {},
	"v":      {},
	"mount":  {},
}

func checkLaunchArgs(h Hat) error {
	for key := range h.LaunchArgs() {
		if _, reserved := reservedArgs[key]; reserved {
			return fmt.Errorf("%w: hat %q sets %q", ErrReservedArg, h.Name(), key)
		}
	}
	return nil
}
