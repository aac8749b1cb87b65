// Package runtime abstracts the container technology the pool orchestrator
// runs on. The core (poolmanager, mapper, health, migration) depends only on
// the narrow ContainerRuntime interface below, never on a concrete driver,
// so it can be exercised in tests against a fake.
package runtime

import (
	"context"
	"errors"
	"time"
)

var (
	ErrContainerNotFound = errors.New("container not found")
	ErrContainerUpFailed = errors.New("failed to bring container up")
	ErrExecFailed        = errors.New("exec failed")
)

// ContainerState is the presence/liveness of a container.
type ContainerState struct {
	Status  string // "running", "exited", "missing", ...
	Running bool
}

// ContainerStats is live resource usage for a container.
type ContainerStats struct {
	MemMB  float64
	CPUPct float64
}

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Manifest describes how to bring a pool container up: the image to run,
// the host directories to bind-mount, the network to join, and resource
// limits. It is deliberately not tied to Docker Compose or any other
// declarative format — a driver translates it to its own technology.
type Manifest struct {
	Name        string
	Image       string
	NetworkName string
	Binds       map[string]string // hostPath -> containerPath
	MemMB       int64
	CPU         float64
	Labels      map[string]string
}

// ContainerRuntime is the narrow driver interface the core depends on.
type ContainerRuntime interface {
	// ContainerUp brings a container up from a declarative manifest in a
	// working directory. Idempotent: if the named container already
	// exists and is running, it is left alone.
	ContainerUp(ctx context.Context, workdir string, manifest Manifest) error

	// ContainerStop stops a container without removing it or its volumes,
	// used when a caller may need to bring it back (e.g. migration's
	// stop-before-migrate step, reversible via RestartContainer).
	ContainerStop(ctx context.Context, name string) error

	// ContainerDown tears a container down and removes its volumes.
	ContainerDown(ctx context.Context, workdir string, name string) error

	// ContainerInspect reports presence and state.
	ContainerInspect(ctx context.Context, name string) (ContainerState, error)

	// ExecInContainer runs a command inside a running container.
	ExecInContainer(ctx context.Context, name string, argv []string) (ExecResult, error)

	// ContainerStats reports live resource usage.
	ContainerStats(ctx context.Context, name string) (ContainerStats, error)

	// RestartContainer restarts a container by name.
	RestartContainer(ctx context.Context, name string) error
}
