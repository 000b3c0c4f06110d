package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the Async queue length used by the daemon.
const DefaultBufferSize = 256

// Async delivers outcomes to an observer from one background goroutine.
//
// Observe never blocks: when the queue is full the outcome is dropped.
// Delivery order matches Observe order.
type Async struct {
	next    Observer
	queue   chan Outcome
	done    chan struct{}
	logger  Logger
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts delivering to next. buffer < 1 selects DefaultBufferSize.
func NewAsync(next Observer, buffer int) *Async {
	if buffer < 1 {
		buffer = DefaultBufferSize
	}
	a := &Async{
		next:   next,
		queue:  make(chan Outcome, buffer),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
	go a.loop()
	return a
}

// SetLogger sets the logger for dropped outcomes and observer panics.
// Call before the first Observe.
func (a *Async) SetLogger(logger Logger) {
	a.logger = logger
}

// Observe queues o. Outcomes observed after Close are discarded.
func (a *Async) Observe(o Outcome) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- o:
	default:
		n := a.dropped.Add(1)
		a.logger.Warn("event queue full, outcome dropped",
			"request_id", o.RequestID,
			"device", o.Device,
			"dropped_total", n,
		)
	}
}

// Dropped returns how many outcomes were discarded on a full queue.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting outcomes and waits until the queued ones are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) loop() {
	defer close(a.done)
	for o := range a.queue {
		a.deliver(o)
	}
}

func (a *Async) deliver(o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("event observer panicked", "request_id", o.RequestID, "panic", r)
		}
	}()
	a.next.Observe(o)
}
