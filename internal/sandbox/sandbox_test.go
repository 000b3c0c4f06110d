package sandbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeRuntime struct {
	mu      sync.Mutex
	missing map[string]bool
	runs    []RunSpec
	stopped []string
	closed  bool
	next    int
}

func newFakeRuntime(missingImages ...string) *fakeRuntime {
	rt := &fakeRuntime{missing: make(map[string]bool)}
	for _, img := range missingImages {
		rt.missing[img] = true
	}
	return rt
}

func (f *fakeRuntime) Engine() string { return "fake" }

func (f *fakeRuntime) Run(_ context.Context, spec RunSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.missing[spec.Image] {
		return "", fmt.Errorf("image %s not found", spec.Image)
	}
	f.runs = append(f.runs, spec)
	f.next++
	return fmt.Sprintf("container%02d", f.next), nil
}

func (f *fakeRuntime) Stop(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestManager_RegisterRules(t *testing.T) {
	m := NewManager(newFakeRuntime(), DefaultOptions("/srv/tophat"))

	if err := m.Register(NewHat("weather", "acme/weather", nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name string
		hat  Hat
		want error
	}{
		{"duplicate", NewHat("weather", "acme/other", nil), ErrHatExists},
		{"empty name", NewHat("", "acme/other", nil), ErrInvalidHat},
		{"reserved volume", NewHat("clock", "acme/clock", map[string]string{"volume": "/:/host"}), ErrReservedArg},
		{"reserved cpus", NewHat("clock", "acme/clock", map[string]string{"cpus": "4"}), ErrReservedArg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Register(tt.hat); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}

	m.StartAll(context.Background())
	if err := m.Register(NewHat("late", "acme/late", nil)); !errors.Is(err, ErrManagerStarted) {
		t.Errorf("Register() after StartAll error = %v, want ErrManagerStarted", err)
	}
}

func TestManager_MissingImageDoesNotStopOthers(t *testing.T) {
	rt := newFakeRuntime("acme/ghost")
	m := NewManager(rt, DefaultOptions("/srv/tophat"))

	for _, h := range []Hat{
		NewHat("ghost", "acme/ghost", nil),
		NewHat("weather", "acme/weather", map[string]string{"env": "CITY=Leeds"}),
	} {
		if err := m.Register(h); err != nil {
			t.Fatalf("Register(%s) error = %v", h.Name(), err)
		}
	}

	outcome := m.StartAll(context.Background())
	if outcome["ghost"] {
		t.Error("ghost hat reported started")
	}
	if !outcome["weather"] {
		t.Error("weather hat not started")
	}

	statuses := m.Status()
	if len(statuses) != 2 {
		t.Fatalf("Status() len = %d, want 2", len(statuses))
	}
	if statuses[0].Running || statuses[0].LastError == "" {
		t.Errorf("ghost status = %+v, want not running with an error", statuses[0])
	}
	if !statuses[1].Running || statuses[1].ContainerID != "container01" {
		t.Errorf("weather status = %+v, want running container01", statuses[1])
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if !slices.Equal(rt.stopped, []string{"container01"}) {
		t.Errorf("stopped = %v, want [container01]", rt.stopped)
	}
	if !rt.closed {
		t.Error("runtime not closed")
	}
}

func TestBox_RunSpec(t *testing.T) {
	rt := newFakeRuntime()
	opts := DefaultOptions("/srv/tophat")
	b := newBox(NewHat("weather", "acme/weather", map[string]string{"env": "CITY=Leeds"}), rt, opts, noopLogger{})

	if !b.Start(context.Background()) {
		t.Fatal("Start() = false")
	}
	if !b.Start(context.Background()) {
		t.Fatal("second Start() = false")
	}
	if len(rt.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(rt.runs))
	}

	spec := rt.runs[0]
	if spec.Image != "acme/weather" || spec.Name != "tophat-weather" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.CPUs <= 0 {
		t.Errorf("CPUs = %v, want > 0", spec.CPUs)
	}
	wantMount := Mount{Source: "/srv/tophat", Target: MountPath}
	if len(spec.Mounts) != 1 || spec.Mounts[0] != wantMount {
		t.Errorf("Mounts = %+v, want [%+v]", spec.Mounts, wantMount)
	}
	if spec.Args["env"] != "CITY=Leeds" {
		t.Errorf("Args = %v", spec.Args)
	}
}

func TestBox_StopIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	b := newBox(NewHat("weather", "acme/weather", nil), rt, DefaultOptions("/srv/tophat"), noopLogger{})

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() before Start() error = %v", err)
	}
	b.Start(context.Background())
	for range 2 {
		if err := b.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}
	if len(rt.stopped) != 1 {
		t.Errorf("stopped %d times, want 1", len(rt.stopped))
	}
	if b.Status().Running {
		t.Error("box still running after Stop()")
	}
}

func TestRunArgs(t *testing.T) {
	got := runArgs(RunSpec{
		Name:   "tophat-weather",
		Image:  "acme/weather:1",
		CPUs:   1,
		Mounts: []Mount{{Source: "/srv/tophat", Target: MountPath}},
		Args:   map[string]string{"env": "CITY=Leeds", "read-only": "", "network": "none"},
	})
	want := []string{
		"run", "--detach", "--rm",
		"--name", "tophat-weather",
		"--cpus", "1.00",
		"--volume", "/srv/tophat:/var/run/tophat:rw",
		"--env=CITY=Leeds",
		"--network=none",
		"--read-only",
		"acme/weather:1",
	}
	if !slices.Equal(got, want) {
		t.Errorf("runArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestCLIRuntime_StopFallsBackToKill(t *testing.T) {
	var calls [][]string
	rt := &CLIRuntime{
		engine: EnginePodman,
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			calls = append(calls, append([]string{name}, args...))
			if args[0] == "stop" {
				return nil, errors.New("timeout")
			}
			return nil, nil
		},
	}

	if err := rt.Stop(context.Background(), "abc", 8*time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	want := [][]string{
		{"podman", "stop", "--time", "8", "abc"},
		{"podman", "kill", "abc"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if !slices.Equal(calls[i], want[i]) {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestCLIRuntime_RunParsesID(t *testing.T) {
	rt := &CLIRuntime{
		engine: EngineDocker,
		run: func(context.Context, string, ...string) ([]byte, error) {
			return []byte("4f1c2a9b\n"), nil
		},
	}
	id, err := rt.Run(context.Background(), RunSpec{Image: "acme/weather"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if id != "4f1c2a9b" {
		t.Errorf("Run() id = %q", id)
	}

	rt.run = func(context.Context, string, ...string) ([]byte, error) { return nil, nil }
	if _, err := rt.Run(context.Background(), RunSpec{Image: "acme/weather"}); err == nil {
		t.Error("Run() with empty output succeeded")
	}
}
