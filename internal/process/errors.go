package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running manager.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNotReady is returned by Start when the readiness check does not
	// pass within ReadyTimeout.
	ErrNotReady = errors.New("process: not ready")

	// ErrExited is returned by Start when the process exits before it is ready.
	ErrExited = errors.New("process: exited during startup")

	// ErrDuplicate is returned by Group.Add for a name already present.
	ErrDuplicate = errors.New("process: duplicate name")
)

// RecoverableError lets an exit error state whether a restart can help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether the monitor should restart after err.
// Errors that do not implement RecoverableError are treated as recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// configExitCode is the exit status owners use for configuration errors.
// Restarting with the same arguments cannot fix those.
const configExitCode = 2

type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string       { return e.err.Error() }
func (e *exitError) Unwrap() error       { return e.err }
func (e *exitError) IsRecoverable() bool { return e.code != configExitCode }
