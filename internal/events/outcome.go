package events

import (
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/protocol"
	"github.com/nerrad567/tophat-core/internal/worker"
)

// Outcome describes one finished request.
type Outcome struct {
	RequestID string
	Device    string
	Command   device.Tag
	Kind      device.Kind
	Status    protocol.Status
	Err       error

	Submitted time.Time
	Started   time.Time // zero when the command never ran
	Finished  time.Time
}

// FromTask builds the Outcome of a completed task.
func FromTask(requestID string, t *worker.Task, status protocol.Status) Outcome {
	_, err := t.Outcome()
	submitted, started, finished := t.Timing()
	return Outcome{
		RequestID: requestID,
		Device:    t.DeviceName(),
		Command:   t.Tag(),
		Kind:      t.Kind(),
		Status:    status,
		Err:       err,
		Submitted: submitted,
		Started:   started,
		Finished:  finished,
	}
}

// Duration is how long the command body ran.
func (o Outcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// Queued is how long the task waited for a worker.
func (o Outcome) Queued() time.Duration {
	if o.Started.IsZero() || o.Submitted.IsZero() {
		return 0
	}
	return o.Started.Sub(o.Submitted)
}

// ErrorText returns the error message, or "" on success.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Observer receives finished requests.
type Observer interface {
	Observe(o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(o Outcome)

// Observe calls f(o).
func (f ObserverFunc) Observe(o Outcome) { f(o) }

// Multi delivers each outcome to every observer in order.
type Multi []Observer

// Observe implements Observer.
func (m Multi) Observe(o Outcome) {
	for _, obs := range m {
		obs.Observe(o)
	}
}

// Logger is the logging interface used by observers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
