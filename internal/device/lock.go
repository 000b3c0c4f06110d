package device

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Lock is a device's private execution lock.
//
// Acquire honours context cancellation. Waiters are served in roughly
// arrival order but fairness is not guaranteed.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock returns an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire takes the lock without blocking and reports success.
func (l *Lock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release unlocks. It panics if the lock is not held.
func (l *Lock) Release() {
	l.sem.Release(1)
}

// Busy reports whether the lock is currently held.
func (l *Lock) Busy() bool {
	if l.sem.TryAcquire(1) {
		l.sem.Release(1)
		return false
	}
	return true
}
