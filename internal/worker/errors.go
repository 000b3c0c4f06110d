package worker

import "errors"

var (
	// ErrQueueFull is returned when a job is submitted while every queue slot is taken.
	ErrQueueFull = errors.New("worker: queue full")

	// ErrCancelled is returned for jobs that were queued but never started before shutdown.
	ErrCancelled = errors.New("worker: cancelled before start")

	// ErrPoolClosed is returned for jobs submitted after Shutdown.
	ErrPoolClosed = errors.New("worker: pool closed")

	// ErrNotStarted is returned when jobs are submitted before Start.
	ErrNotStarted = errors.New("worker: pool not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("worker: pool already started")

	// ErrShutdownTimeout is returned when running jobs outlive the shutdown grace period.
	ErrShutdownTimeout = errors.New("worker: shutdown grace period exceeded")
)
