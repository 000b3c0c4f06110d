package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDevice runs commands through their own Run method.
type fakeDevice struct {
	Base
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeDevice(name string, tags ...Tag) *fakeDevice {
	return &fakeDevice{Base: NewBase(name, NewTagSet(tags...))}
}

func (d *fakeDevice) Run(ctx context.Context, cmd Command) (any, error) {
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		old := d.maxSeen.Load()
		if n <= old || d.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	return cmd.Run(ctx, d)
}

// funcCommand adapts a function to Command.
type funcCommand struct {
	tag  Tag
	kind Kind
	fn   func(ctx context.Context) (any, error)
}

func (c funcCommand) Tag() Tag   { return c.tag }
func (c funcCommand) Kind() Kind { return c.kind }
func (c funcCommand) Run(ctx context.Context, _ Device) (any, error) {
	return c.fn(ctx)
}

func TestExecute_UnsupportedCommandNeverTakesLock(t *testing.T) {
	d := newFakeDevice("lamp", "test.on")
	lock := NewLock()

	// Hold the lock; an unsupported command must still return immediately.
	if !lock.TryAcquire() {
		t.Fatal("TryAcquire on fresh lock failed")
	}
	defer lock.Release()

	ran := false
	cmd := funcCommand{tag: "test.off", kind: KindSync, fn: func(context.Context) (any, error) {
		ran = true
		return nil, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Execute(ctx, d, lock, cmd)

	var unsupported *UnsupportedCommandError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Execute() error = %v, want *UnsupportedCommandError", err)
	}
	if unsupported.Device != "lamp" || unsupported.Tag != "test.off" {
		t.Errorf("UnsupportedCommandError = %+v", unsupported)
	}
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Error("errors.Is(err, ErrUnsupportedCommand) = false")
	}
	if ran {
		t.Error("unsupported command body ran")
	}
}

func TestExecute_SyncReturnsResult(t *testing.T) {
	d := newFakeDevice("lamp", "test.state")
	lock := NewLock()

	cmd := funcCommand{tag: "test.state", kind: KindSync, fn: func(context.Context) (any, error) {
		return true, nil
	}}

	result, err := Execute(context.Background(), d, lock, cmd)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != true {
		t.Errorf("Execute() result = %v, want true", result)
	}
	if lock.Busy() {
		t.Error("lock still held after Execute returned")
	}
}

func TestExecute_AsyncDiscardsResult(t *testing.T) {
	d := newFakeDevice("printer", "test.print")

	cmd := funcCommand{tag: "test.print", kind: KindAsync, fn: func(context.Context) (any, error) {
		return "ignored", nil
	}}

	result, err := Execute(context.Background(), d, NewLock(), cmd)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != nil {
		t.Errorf("Execute() result = %v, want nil for async", result)
	}
}

func TestExecute_PanicReleasesLock(t *testing.T) {
	d := newFakeDevice("lamp", "test.boom")
	lock := NewLock()

	cmd := funcCommand{tag: "test.boom", kind: KindSync, fn: func(context.Context) (any, error) {
		panic("driver fault")
	}}

	_, err := Execute(context.Background(), d, lock, cmd)

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Execute() error = %v, want *PanicError", err)
	}
	if panicErr.Value != "driver fault" {
		t.Errorf("PanicError.Value = %v", panicErr.Value)
	}
	if lock.Busy() {
		t.Error("lock still held after panic")
	}
}

func TestExecute_ErrorReleasesLock(t *testing.T) {
	d := newFakeDevice("lamp", "test.fail")
	lock := NewLock()
	wantErr := errors.New("bus error")

	cmd := funcCommand{tag: "test.fail", kind: KindSync, fn: func(context.Context) (any, error) {
		return nil, wantErr
	}}

	if _, err := Execute(context.Background(), d, lock, cmd); !errors.Is(err, wantErr) {
		t.Fatalf("Execute() error = %v, want %v", err, wantErr)
	}
	if lock.Busy() {
		t.Error("lock still held after error")
	}
}

func TestExecute_SameDeviceNeverOverlaps(t *testing.T) {
	d := newFakeDevice("strip", "test.sleep")
	lock := NewLock()

	cmd := funcCommand{tag: "test.sleep", kind: KindAsync, fn: func(ctx context.Context) (any, error) {
		return nil, Sleep(ctx, 20*time.Millisecond)
	}}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Execute(context.Background(), d, lock, cmd); err != nil {
				t.Errorf("Execute() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := d.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent bodies on one device = %d, want 1", got)
	}
}

func TestExecute_DifferentDevicesOverlap(t *testing.T) {
	a := newFakeDevice("a", "test.meet")
	b := newFakeDevice("b", "test.meet")

	var arrived sync.WaitGroup
	arrived.Add(2)
	both := make(chan struct{})
	go func() {
		arrived.Wait()
		close(both)
	}()

	cmd := funcCommand{tag: "test.meet", kind: KindSync, fn: func(ctx context.Context) (any, error) {
		arrived.Done()
		select {
		case <-both:
			return "met", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errs := make(chan error, 2)
	for _, d := range []*fakeDevice{a, b} {
		go func(d *fakeDevice) {
			_, err := Execute(ctx, d, NewLock(), cmd)
			errs <- err
		}(d)
	}

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Execute() error = %v; bodies on different devices did not overlap", err)
		}
	}
}

func TestExecute_LockWaitHonoursContext(t *testing.T) {
	d := newFakeDevice("lamp", "test.on")
	lock := NewLock()
	lock.TryAcquire()
	defer lock.Release()

	cmd := funcCommand{tag: "test.on", kind: KindSync, fn: func(context.Context) (any, error) {
		return nil, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := Execute(ctx, d, lock, cmd); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want DeadlineExceeded", err)
	}
}

func TestRunFor(t *testing.T) {
	loop := func(ctx context.Context) error {
		for {
			if err := Sleep(ctx, 5*time.Millisecond); err != nil {
				return err
			}
		}
	}

	t.Run("deadline is normal termination", func(t *testing.T) {
		start := time.Now()
		if err := RunFor(context.Background(), 30*time.Millisecond, loop); err != nil {
			t.Fatalf("RunFor() error = %v, want nil", err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("RunFor() returned after %v, before its deadline", elapsed)
		}
	})

	t.Run("parent cancellation is reported", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		if err := RunFor(ctx, time.Hour, loop); !errors.Is(err, context.Canceled) {
			t.Errorf("RunFor() error = %v, want Canceled", err)
		}
	})

	t.Run("zero duration runs until parent ends", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := RunFor(ctx, 0, loop); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("RunFor() error = %v, want parent DeadlineExceeded", err)
		}
	})

	t.Run("body error passes through", func(t *testing.T) {
		want := errors.New("strip unplugged")
		err := RunFor(context.Background(), time.Second, func(context.Context) error { return want })
		if !errors.Is(err, want) {
			t.Errorf("RunFor() error = %v, want %v", err, want)
		}
	})
}

func TestSeconds(t *testing.T) {
	if got := Seconds(1.5); got != 1500*time.Millisecond {
		t.Errorf("Seconds(1.5) = %v", got)
	}
	if got := Seconds(0); got != 0 {
		t.Errorf("Seconds(0) = %v", got)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindSync, "sync"},
		{KindAsync, "async"},
		{Kind(0), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestTagSet(t *testing.T) {
	s := NewTagSet("b.two", "a.one")
	if !s.Has("a.one") || s.Has("c.three") {
		t.Errorf("Has() wrong for %v", s)
	}
	sorted := s.Sorted()
	if len(sorted) != 2 || sorted[0] != "a.one" || sorted[1] != "b.two" {
		t.Errorf("Sorted() = %v", sorted)
	}
}

type otherDevice struct{ Base }

func (d *otherDevice) Run(ctx context.Context, cmd Command) (any, error) { return cmd.Run(ctx, d) }

func TestAs(t *testing.T) {
	d := newFakeDevice("lamp", "test.on")
	cmd := funcCommand{tag: "test.on", kind: KindSync}

	got, err := As[*fakeDevice](d, cmd)
	if err != nil || got != d {
		t.Errorf("As[*fakeDevice]() = %v, %v", got, err)
	}

	if _, err := As[*otherDevice](d, cmd); !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("As[*otherDevice]() error = %v, want ErrDeviceMismatch", err)
	}
}
