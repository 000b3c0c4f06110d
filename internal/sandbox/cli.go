package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Container engines CLIRuntime can drive.
const (
	EnginePodman = "podman"
	EngineDocker = "docker"
)

// commandRunner runs the engine binary and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CLIRuntime drives podman or docker through their command line.
type CLIRuntime struct {
	engine string
	run    commandRunner
}

// NewCLIRuntime returns a runtime for engine. An empty engine picks
// podman when installed, else docker.
func NewCLIRuntime(engine string) (*CLIRuntime, error) {
	if engine == "" {
		for _, candidate := range []string{EnginePodman, EngineDocker} {
			if _, err := exec.LookPath(candidate); err == nil {
				engine = candidate
				break
			}
		}
		if engine == "" {
			return nil, ErrNoEngine
		}
	} else if _, err := exec.LookPath(engine); err != nil {
		return nil, fmt.Errorf("sandbox: engine %q: %w", engine, err)
	}

	return &CLIRuntime{engine: engine, run: execRunner}, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // engine is podman or docker, resolved via LookPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// Engine returns the engine binary name.
func (r *CLIRuntime) Engine() string {
	return r.engine
}

// Run starts spec and returns the container ID printed by the engine.
func (r *CLIRuntime) Run(ctx context.Context, spec RunSpec) (string, error) {
	out, err := r.run(ctx, r.engine, runArgs(spec)...)
	if err != nil {
		return "", fmt.Errorf("%s run %s: %w", r.engine, spec.Image, err)
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("%s run %s: no container id", r.engine, spec.Image)
	}
	return id, nil
}

// Stop runs "stop --time", falling back to "kill" when stop fails.
func (r *CLIRuntime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	seconds := strconv.Itoa(int(math.Ceil(timeout.Seconds())))

	if _, err := r.run(ctx, r.engine, "stop", "--time", seconds, id); err != nil {
		if _, killErr := r.run(ctx, r.engine, "kill", id); killErr != nil {
			return fmt.Errorf("%s stop %s: %w", r.engine, id, err)
		}
	}
	return nil
}

// Close is a no-op; the CLI holds no connection.
func (r *CLIRuntime) Close() error {
	return nil
}

func runArgs(spec RunSpec) []string {
	args := []string{"run", "--detach", "--rm"}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	if spec.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.CPUs, 'f', 2, 64))
	}
	for _, m := range spec.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "--volume", m.Source+":"+m.Target+":"+mode)
	}

	keys := make([]string, 0, len(spec.Args))
	for k := range spec.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := spec.Args[k]; v != "" {
			args = append(args, "--"+k+"="+v)
		} else {
			args = append(args, "--"+k)
		}
	}

	return append(args, spec.Image)
}
