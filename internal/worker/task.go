package worker

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
)

// Job is one command bound for one device.
type Job struct {
	// ID correlates the job with its request in logs and events.
	ID string

	Device  device.Device
	Lock    *device.Lock
	Command device.Command
}

// Task is the pending outcome of a submitted Job.
//
// A Task completes exactly once. Its result and error are readable after
// Done is closed.
type Task struct {
	job Job

	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	result    any
	err       error
	submitted time.Time
	started   time.Time
	finished  time.Time
}

func newTask(job Job) *Task {
	return &Task{
		job:       job,
		done:      make(chan struct{}),
		submitted: time.Now(),
	}
}

// ID returns the job ID.
func (t *Task) ID() string { return t.job.ID }

// DeviceName returns the target device name.
func (t *Task) DeviceName() string { return t.job.Device.Name() }

// Tag returns the command tag.
func (t *Task) Tag() device.Tag { return t.job.Command.Tag() }

// Kind returns the command kind.
func (t *Task) Kind() device.Kind { return t.job.Command.Kind() }

// Done is closed when the task has completed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes or ctx is done.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.Outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll reports the outcome without waiting. done is false while the task is pending.
func (t *Task) Poll() (done bool, result any, err error) {
	select {
	case <-t.done:
		result, err = t.Outcome()
		return true, result, err
	default:
		return false, nil, nil
	}
}

// Outcome returns the result and error. Both are zero until Done is closed.
func (t *Task) Outcome() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Timing returns when the task was submitted, started and finished.
// started is zero for tasks that never ran.
func (t *Task) Timing() (submitted, started, finished time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submitted, t.started, t.finished
}

// Duration returns how long the command body ran, or zero if it never started.
func (t *Task) Duration() time.Duration {
	_, started, finished := t.Timing()
	if started.IsZero() || finished.IsZero() {
		return 0
	}
	return finished.Sub(started)
}

func (t *Task) markStarted() {
	t.mu.Lock()
	t.started = time.Now()
	t.mu.Unlock()
}

// complete records the outcome once and reports whether this call did so.
// The outcome becomes visible to waiters only after release.
func (t *Task) complete(result any, err error) bool {
	completed := false
	t.once.Do(func() {
		t.mu.Lock()
		t.result = result
		t.err = err
		t.finished = time.Now()
		t.mu.Unlock()
		completed = true
	})
	return completed
}

func (t *Task) release() {
	close(t.done)
}
