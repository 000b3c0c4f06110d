package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tophat-core/internal/device"
)

// Config holds worker pool settings.
type Config struct {
	// Workers is the number of goroutines executing commands.
	Workers int

	// QueueDepth bounds jobs waiting for a worker.
	QueueDepth int

	// ShutdownGrace is how long Shutdown waits for running jobs.
	ShutdownGrace time.Duration
}

// DefaultConfig returns a Config with the daemon defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueDepth:    64,
		ShutdownGrace: 5 * time.Second,
	}
}

// Logger defines the logging interface for the worker pool.
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

// CompletionFunc observes every finished task, including tasks that failed
// admission or were cancelled before starting. It runs on the goroutine
// that completed the task, before waiters are released, and must not block.
type CompletionFunc func(t *Task)

// Pool executes jobs on a fixed set of goroutines.
//
// Each job runs under its own context derived from the pool context, so
// Shutdown interrupts running commands. A panic in one job never takes
// down a worker.
type Pool struct {
	config     Config
	logger     Logger
	onComplete CompletionFunc

	mu      sync.Mutex
	queue   chan *Task
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	wg      sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates a pool. Zero config values fall back to DefaultConfig.
func New(cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}

	return &Pool{
		config: cfg,
		logger: noopLogger{},
		queue:  make(chan *Task, cfg.QueueDepth),
	}
}

// SetLogger sets the logger for the pool.
func (p *Pool) SetLogger(logger Logger) {
	p.logger = logger
}

// OnComplete registers the completion observer. Call before Start.
func (p *Pool) OnComplete(fn CompletionFunc) {
	p.onComplete = fn
}

// Start launches the workers. Jobs run under contexts derived from ctx.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}

	p.logger.Info("worker pool started",
		"workers", p.config.Workers,
		"queue_depth", p.config.QueueDepth,
	)
	return nil
}

// Submit admits job and queues it.
//
// Admission (the device's Check) runs inline. If it fails, or the queue is
// full, or the pool is not accepting work, the returned task is already
// complete with the corresponding error. Submit never blocks.
func (p *Pool) Submit(job Job) *Task {
	t := newTask(job)

	if err := p.admit(job); err != nil {
		p.finish(t, nil, err)
		return t
	}

	p.mu.Lock()
	switch {
	case !p.started:
		p.mu.Unlock()
		p.finish(t, nil, ErrNotStarted)
		return t
	case p.closed:
		p.mu.Unlock()
		p.finish(t, nil, ErrPoolClosed)
		return t
	}

	select {
	case p.queue <- t:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		p.rejected.Add(1)
		p.logger.Warn("worker queue full",
			"request_id", job.ID,
			"device", job.Device.Name(),
			"command", job.Command.Tag(),
		)
		p.finish(t, nil, ErrQueueFull)
	}
	return t
}

// admit runs the device's admission check, converting a panic to an error.
func (p *Pool) admit(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("admission check panicked: %v", r)
		}
	}()
	return job.Device.Check(job.Command)
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t := <-p.queue:
			if p.ctx.Err() != nil {
				p.finish(t, nil, ErrCancelled)
				continue
			}
			p.run(id, t)
		}
	}
}

func (p *Pool) run(workerID int, t *Task) {
	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	p.running.Add(1)
	defer p.running.Add(-1)

	t.markStarted()
	p.logger.Debug("running command",
		"worker", workerID,
		"request_id", t.ID(),
		"device", t.DeviceName(),
		"command", t.Tag(),
	)

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("worker %d: job panicked: %v", workerID, r)
			}
		}()
		result, err = device.Execute(ctx, t.job.Device, t.job.Lock, t.job.Command)
	}()

	p.finish(t, result, err)
}

func (p *Pool) finish(t *Task, result any, err error) {
	if !t.complete(result, err) {
		return
	}

	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}

	if p.onComplete != nil {
		p.onComplete(t)
	}
	t.release()
}

// Shutdown stops accepting jobs and cancels running ones.
//
// Jobs still queued complete with ErrCancelled. Shutdown then waits up to
// the grace period for running jobs to return, reporting
// ErrShutdownTimeout if any remain. Those jobs are abandoned.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	dropped := p.drain()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	// Workers may have pulled a task between cancel and drain.
	defer p.drain()

	select {
	case <-done:
		p.logger.Info("worker pool stopped", "dropped", dropped)
		return nil
	case <-time.After(p.config.ShutdownGrace):
		p.logger.Warn("worker pool grace period exceeded, abandoning running commands",
			"running", p.running.Load(),
			"grace", p.config.ShutdownGrace,
		)
		return ErrShutdownTimeout
	}
}

func (p *Pool) drain() int {
	n := 0
	for {
		select {
		case t := <-p.queue:
			p.finish(t, nil, ErrCancelled)
			n++
		default:
			return n
		}
	}
}

// Stats summarises pool activity.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Queued     int   `json:"queued"`
	Running    int64 `json:"running"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Rejected   int64 `json:"rejected"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    p.config.Workers,
		QueueDepth: p.config.QueueDepth,
		Queued:     len(p.queue),
		Running:    p.running.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
	}
}
