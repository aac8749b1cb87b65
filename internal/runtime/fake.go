package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

var _ ContainerRuntime = (*FakeDriver)(nil)

// FakeDriver is an in-memory ContainerRuntime double for tests. It tracks
// containers and, per container, a set of "running programs" so tests can
// simulate the in-container supervisor's program list without a real
// container or supervisor process.
type FakeDriver struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer

	// Hooks let tests inject failures for specific calls.
	OnExec func(name string, argv []string) (ExecResult, error)
}

type fakeContainer struct {
	running  bool
	programs map[string]string // program name -> state (RUNNING/STOPPED/FATAL/BACKOFF)
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{containers: make(map[string]*fakeContainer)}
}

func (f *FakeDriver) ContainerUp(ctx context.Context, workdir string, manifest Manifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[manifest.Name]; ok {
		c.running = true
		return nil
	}
	f.containers[manifest.Name] = &fakeContainer{running: true, programs: make(map[string]string)}
	return nil
}

func (f *FakeDriver) ContainerStop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ErrContainerNotFound
	}
	c.running = false
	return nil
}

func (f *FakeDriver) ContainerDown(ctx context.Context, workdir string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *FakeDriver) ContainerInspect(ctx context.Context, name string) (ContainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ContainerState{Status: "missing"}, ErrContainerNotFound
	}
	if c.running {
		return ContainerState{Status: "running", Running: true}, nil
	}
	return ContainerState{Status: "exited", Running: false}, nil
}

func (f *FakeDriver) ContainerStats(ctx context.Context, name string) (ContainerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return ContainerStats{}, ErrContainerNotFound
	}
	return ContainerStats{MemMB: 64, CPUPct: 1.5}, nil
}

func (f *FakeDriver) RestartContainer(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ErrContainerNotFound
	}
	c.running = true
	return nil
}

// ExecInContainer interprets a small slice of the supervisor protocol
// (reread/update/start/stop/restart/remove/status/version) directly against
// the fake's program table, so tests can drive poolmanager/health/migration
// without a real supervisor binary. A leading "supervisorctl" in argv, as
// the supervisor client sends it, is accepted and skipped.
func (f *FakeDriver) ExecInContainer(ctx context.Context, name string, argv []string) (ExecResult, error) {
	if f.OnExec != nil {
		if res, err := f.OnExec(name, argv); err != nil || res.ExitCode != 0 {
			return res, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ExecResult{}, ErrContainerNotFound
	}
	if !c.running {
		return ExecResult{ExitCode: 1, Stderr: "container not running"}, nil
	}
	if len(argv) > 0 && argv[0] == "supervisorctl" {
		argv = argv[1:]
	}
	if len(argv) == 0 {
		return ExecResult{ExitCode: 1, Stderr: "empty command"}, nil
	}

	switch argv[0] {
	case "reread", "update", "version":
		return ExecResult{ExitCode: 0}, nil
	case "start":
		prog := argAt(argv, 1)
		c.programs[prog] = "RUNNING"
		return ExecResult{ExitCode: 0, Stdout: prog + ": started"}, nil
	case "stop":
		prog := argAt(argv, 1)
		c.programs[prog] = "STOPPED"
		return ExecResult{ExitCode: 0, Stdout: prog + ": stopped"}, nil
	case "restart":
		prog := argAt(argv, 1)
		c.programs[prog] = "RUNNING"
		return ExecResult{ExitCode: 0, Stdout: prog + ": started"}, nil
	case "remove":
		prog := argAt(argv, 1)
		delete(c.programs, prog)
		return ExecResult{ExitCode: 0}, nil
	case "status":
		var b strings.Builder
		for prog, state := range c.programs {
			fmt.Fprintf(&b, "%-32s %s\n", prog, state)
		}
		return ExecResult{ExitCode: 0, Stdout: b.String()}, nil
	default:
		return ExecResult{ExitCode: 1, Stderr: "unknown supervisor command: " + argv[0]}, nil
	}
}

func argAt(argv []string, i int) string {
	if i < len(argv) {
		return argv[i]
	}
	return ""
}

// SetProgramState lets a test force a program into a particular supervisor
// state (e.g. FATAL) without going through Start/Stop.
func (f *FakeDriver) SetProgramState(containerName, program, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[containerName]
	if !ok {
		c = &fakeContainer{running: true, programs: make(map[string]string)}
		f.containers[containerName] = c
	}
	c.programs[program] = state
}

// SetRunning forces a container's running flag, for simulating a crashed
// pool container independently of ContainerDown.
func (f *FakeDriver) SetRunning(containerName string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[containerName]; ok {
		c.running = running
	}
}
