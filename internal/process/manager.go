package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// Defaults applied by NewManager to zero Config fields.
const (
	defaultRestartDelay        = 5 * time.Second
	defaultMaxRestartDelay     = 5 * time.Minute
	defaultStableThreshold     = 2 * time.Minute
	defaultGracefulTimeout     = 10 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	defaultReadyTimeout        = 10 * time.Second

	readyPollInterval       = 50 * time.Millisecond
	healthCheckTimeout      = 5 * time.Second
	maxConsecutiveFailures  = 3
	killWaitTimeout         = 5 * time.Second
	maxOutputLineBytes      = 64 * 1024
	initialOutputLineBuffer = 4096
)

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name identifies the process in logs; for owners it is the device name.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// RestartOnFailure enables automatic restart when the process exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay; it doubles per attempt.
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff delay.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a process must run before the restart
	// counter and backoff reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// ReadyFunc reports whether a freshly started process is ready to serve.
	// If nil, the process is ready as soon as it starts.
	ReadyFunc func(ctx context.Context) error

	// ReadyTimeout bounds the readiness wait in Start.
	ReadyTimeout time.Duration

	// HealthCheckFunc is called periodically while the process runs. Three
	// consecutive failures kill the process. If nil, no checks run.
	HealthCheckFunc func(ctx context.Context) error

	// HealthCheckInterval is how often to run health checks.
	HealthCheckInterval time.Duration

	// OnStart is called each time the process starts.
	OnStart func()

	// OnStop is called when the process stops, with nil for a requested stop.
	OnStop func(err error)
}

// DefaultConfig returns a Config that restarts on failure with the
// package defaults.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        defaultRestartDelay,
		MaxRestartDelay:     defaultMaxRestartDelay,
		StableThreshold:     defaultStableThreshold,
		MaxRestartAttempts:  10,
		GracefulTimeout:     defaultGracefulTimeout,
		HealthCheckInterval: defaultHealthCheckInterval,
		ReadyTimeout:        defaultReadyTimeout,
	}
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one subprocess.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	exited        chan struct{} // closed when the current cmd has been waited for
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	stop chan struct{} // closed by the first Stop
	done chan struct{} // closed when the monitor returns
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = defaultHealthCheckInterval
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Name returns the configured process name.
func (m *Manager) Name() string {
	return m.config.Name
}

// Start launches the subprocess, waits until ReadyFunc passes, and then
// monitors it in the background. If the process exits or is not ready in
// time, it is stopped and an error returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)

	if err := m.waitReady(ctx); err != nil {
		m.Stop() //nolint:errcheck // the readiness error is the one reported
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		m.mu.Unlock()
		return err
	}

	return nil
}

// startProcess starts the binary in its own process group.
func (m *Manager) startProcess() error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.Command(m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from the daemon's own configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.exited = make(chan struct{})
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.forwardOutput("stdout", stdout)
	go m.forwardOutput("stderr", stderr)

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}

	return nil
}

// forwardOutput logs each line the process writes.
func (m *Manager) forwardOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialOutputLineBuffer), maxOutputLineBytes)
	for scanner.Scan() {
		m.logger.Info("process output",
			"name", m.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		m.logger.Debug("output stream closed",
			"name", m.config.Name,
			"stream", stream,
			"error", err,
		)
	}
}

// waitReady polls ReadyFunc until it passes, the process exits, or
// ReadyTimeout elapses.
func (m *Manager) waitReady(ctx context.Context) error {
	if m.config.ReadyFunc == nil {
		return nil
	}

	m.mu.RLock()
	exited := m.exited
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.config.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = m.config.ReadyFunc(ctx); lastErr == nil {
			m.logger.Info("process ready", "name", m.config.Name)
			return nil
		}

		select {
		case <-exited:
			return fmt.Errorf("%w: %s", ErrExited, m.config.Name)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %v: %w", ErrNotReady, m.config.Name, m.config.ReadyTimeout, lastErr)
		case <-ticker.C:
		}
	}
}

// wait waits for cmd to exit, killing it after repeated health check
// failures. Context cancellation does not end the wait; Stop does.
func (m *Manager) wait(ctx context.Context, cmd *exec.Cmd, exited chan struct{}) error {
	exitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		close(exited)
		exitCh <- exitErrorFor(err)
	}()

	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					m.logger.Info("health check recovered",
						"name", m.config.Name,
						"previous_failures", failures,
					)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("health check failed",
				"name", m.config.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures < maxConsecutiveFailures {
				continue
			}

			m.logger.Error("health check failed repeatedly, killing process",
				"name", m.config.Name,
				"failures", failures,
			)
			signalGroup(cmd, syscall.SIGKILL) //nolint:errcheck // exit is observed below

			select {
			case exitErr := <-exitCh:
				if exitErr != nil {
					return fmt.Errorf("killed after health check failures: %w", exitErr)
				}
				return fmt.Errorf("killed after %d health check failures", failures)
			case <-time.After(killWaitTimeout):
				return errors.New("process did not exit after kill")
			}
		}
	}
}

// exitErrorFor annotates an exit status so IsRecoverable can classify it.
func exitErrorFor(err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &exitError{err: err, code: ee.ExitCode()}
	}
	return err
}

// monitor watches the process and handles restarts.
func (m *Manager) monitor(ctx context.Context) {
	m.mu.RLock()
	stop, done := m.stop, m.done
	m.mu.RUnlock()
	defer close(done)

	for {
		m.mu.RLock()
		cmd, exited, started := m.cmd, m.exited, m.startTime
		m.mu.RUnlock()

		err := m.wait(ctx, cmd, exited)

		m.mu.Lock()
		stopRequested := m.stopRequested
		if stopRequested {
			m.status = StatusStopped
		} else {
			m.status = StatusFailed
			m.lastError = err
			if time.Since(started) >= m.config.StableThreshold {
				m.restartCount = 0
			}
		}
		m.mu.Unlock()

		if stopRequested {
			m.logger.Info("process stopped as requested", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		m.logger.Warn("process exited unexpectedly",
			"name", m.config.Name,
			"error", err,
		)
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		attempt, ok := m.nextAttempt(ctx, err)
		if !ok {
			return
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process",
			"name", m.config.Name,
			"attempt", attempt,
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			m.logger.Info("context cancelled, not restarting", "name", m.config.Name)
			return
		case <-stop:
			m.setStatus(StatusStopped)
			return
		case <-time.After(delay):
		}

		if err := m.startProcess(); err != nil {
			m.logger.Error("failed to restart process",
				"name", m.config.Name,
				"error", err,
			)
			m.mu.Lock()
			m.lastError = err
			m.mu.Unlock()
			return
		}

		// A Stop that raced the restart saw no running process; finish its job.
		m.mu.RLock()
		stopped, restarted := m.stopRequested, m.cmd
		m.mu.RUnlock()
		if stopped {
			signalGroup(restarted, syscall.SIGTERM) //nolint:errcheck // exit is observed by wait
		}
	}
}

// nextAttempt decides whether to restart after err and returns the attempt number.
func (m *Manager) nextAttempt(ctx context.Context, err error) (int, bool) {
	switch {
	case !m.config.RestartOnFailure:
		m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
		return 0, false
	case !IsRecoverable(err):
		m.logger.Error("process exited with a configuration error, not restarting",
			"name", m.config.Name,
			"error", err,
		)
		return 0, false
	case ctx.Err() != nil:
		return 0, false
	}

	m.mu.Lock()
	m.restartCount++
	attempt := m.restartCount
	m.mu.Unlock()

	if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
		m.logger.Error("max restart attempts reached",
			"name", m.config.Name,
			"attempts", attempt-1,
		)
		return 0, false
	}
	return attempt, true
}

// calculateBackoffDelay returns RestartDelay doubled per attempt after the
// first, capped at MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

// Stop sends SIGTERM to the process group, waits GracefulTimeout, then
// sends SIGKILL. It returns once the monitor has finished.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.stopRequested && m.stop != nil {
		close(m.stop)
	}
	m.stopRequested = true
	cmd := m.cmd
	exited := m.exited
	done := m.done
	running := m.status == StatusRunning || m.status == StatusStarting
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	m.logger.Info("stopping process", "name", m.config.Name, "pid", cmd.Process.Pid)

	if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
		m.logger.Warn("failed to send SIGTERM", "name", m.config.Name, "error", err)
	}

	select {
	case <-exited:
		<-done
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// signalGroup signals the process group created with Setpgid. A process
// that has already exited is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the process to exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the current consecutive restart count.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the process has been running, or 0.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID while running, or 0.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of a managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
