package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Device is a named, command-addressable peripheral.
//
// The capability set is fixed for the device's lifetime. Devices never
// lock themselves: Execute owns the check and lock discipline so local
// devices and proxies behave the same.
type Device interface {
	// Name returns the registry name.
	Name() string

	// SupportedCommands returns the capability set.
	SupportedCommands() TagSet

	// Check is a side-effect-free admission test run at submission time.
	// Local devices only check capability; proxies also check that the
	// owner's socket is present.
	Check(cmd Command) error

	// Run performs cmd. It is called with the device lock held.
	Run(ctx context.Context, cmd Command) (any, error)
}

// Lifecycle is implemented by devices that own background work, such as a
// reader goroutine. Start runs before the server accepts requests; Stop
// runs after the worker pool has shut down.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// As returns d as the concrete device type T that cmd targets.
func As[T Device](d Device, cmd Command) (T, error) {
	t, ok := d.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s on %T", ErrDeviceMismatch, cmd.Tag(), d)
	}
	return t, nil
}

// Base provides the name and capability parts of Device for embedding.
type Base struct {
	name string
	tags TagSet
}

// NewBase returns a Base for a device called name accepting tags.
func NewBase(name string, tags TagSet) Base {
	return Base{name: name, tags: tags}
}

// Name returns the device name.
func (b Base) Name() string { return b.name }

// SupportedCommands returns the device's capability set.
func (b Base) SupportedCommands() TagSet { return b.tags }

// Check reports an *UnsupportedCommandError when cmd is outside the capability set.
func (b Base) Check(cmd Command) error {
	if !b.tags.Has(cmd.Tag()) {
		return &UnsupportedCommandError{Device: b.name, Tag: cmd.Tag()}
	}
	return nil
}

// Execute runs cmd on d under lock.
//
// The capability check happens first; an unsupported command returns
// *UnsupportedCommandError without touching the lock. Otherwise the lock
// is held for the whole of d.Run and released on every exit path. A panic
// in the command body is returned as *PanicError. Async commands always
// yield a nil result.
func Execute(ctx context.Context, d Device, lock *Lock, cmd Command) (result any, err error) {
	if !d.SupportedCommands().Has(cmd.Tag()) {
		return nil, &UnsupportedCommandError{Device: d.Name(), Tag: cmd.Tag()}
	}

	if err := lock.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", d.Name(), err)
	}
	defer lock.Release()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Device: d.Name(), Tag: cmd.Tag(), Value: r}
		}
	}()

	result, err = d.Run(ctx, cmd)
	if cmd.Kind() == KindAsync {
		result = nil
	}
	return result, err
}

// RunFor runs fn under a deadline of d.
//
// Reaching the deadline is normal termination: if fn returns because its
// own deadline expired, RunFor returns nil. Cancellation of the parent
// context is still reported. A duration of zero or less runs fn until the
// parent context ends.
func RunFor(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	runCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(runCtx)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Sleep pauses for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Seconds converts a wire duration in seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
