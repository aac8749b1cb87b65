package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

var _ ContainerRuntime = (*DockerDriver)(nil)

// DockerDriver implements ContainerRuntime against a live Docker daemon. Its
// shape follows the same ensure-image/create/start/inspect sequence the
// sandbox container wrapper uses for single-bot containers, generalized to
// pool containers that host a supervisor and multiple bot programs.
type DockerDriver struct {
	client *client.Client
	logger *slog.Logger
}

func NewDockerDriver(cli *client.Client, logger *slog.Logger) *DockerDriver {
	return &DockerDriver{client: cli, logger: logger}
}

func (d *DockerDriver) ContainerUp(ctx context.Context, workdir string, manifest Manifest) error {
	l := d.logger.With(slog.String("container", manifest.Name))

	existing, err := d.client.ContainerInspect(ctx, manifest.Name)
	if err == nil && existing.State != nil && existing.State.Running {
		l.Info("container already running, leaving in place")
		return nil
	}
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: inspect failed: %v", ErrContainerUpFailed, err)
	}

	if _, err := d.client.ImageInspect(ctx, manifest.Image); errdefs.IsNotFound(err) {
		l.Info("image not found, pulling", "image", manifest.Image)
		reader, err := d.client.ImagePull(ctx, manifest.Image, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("%w: pull failed: %v", ErrContainerUpFailed, err)
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return fmt.Errorf("%w: pull read failed: %v", ErrContainerUpFailed, err)
		}
	} else if err != nil {
		return fmt.Errorf("%w: image inspect failed: %v", ErrContainerUpFailed, err)
	}

	if err := os.MkdirAll(workdir, 0755); err != nil {
		return fmt.Errorf("%w: mkdir workdir: %v", ErrContainerUpFailed, err)
	}

	var binds []string
	for host, cont := range manifest.Binds {
		binds = append(binds, fmt.Sprintf("%s:%s:rw", host, cont))
	}

	cfg := &container.Config{
		Image:  manifest.Image,
		Labels: manifest.Labels,
	}
	hostCfg := &container.HostConfig{
		Binds: binds,
		Resources: container.Resources{
			Memory:   manifest.MemMB * 1024 * 1024,
			NanoCPUs: int64(manifest.CPU * 1e9),
		},
		AutoRemove: false,
	}
	netCfg := &network.NetworkingConfig{}
	if manifest.NetworkName != "" {
		netCfg.EndpointsConfig = map[string]*network.EndpointSettings{
			manifest.NetworkName: {},
		}
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, manifest.Name)
	if err != nil {
		return fmt.Errorf("%w: create failed: %v", ErrContainerUpFailed, err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("%w: start failed: %v", ErrContainerUpFailed, err)
	}

	l.Info("pool container up", "id", resp.ID)
	return nil
}

func (d *DockerDriver) ContainerStop(ctx context.Context, name string) error {
	timeout := 10
	if err := d.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return ErrContainerNotFound
		}
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	return nil
}

func (d *DockerDriver) ContainerDown(ctx context.Context, workdir string, name string) error {
	timeout := 10
	if err := d.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		d.logger.Warn("failed to stop container before removal", "container", name, "error", err)
	}
	if err := d.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func (d *DockerDriver) ContainerInspect(ctx context.Context, name string) (ContainerState, error) {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerState{Status: "missing"}, ErrContainerNotFound
		}
		return ContainerState{}, fmt.Errorf("inspect container %s: %w", name, err)
	}
	status := ""
	running := false
	if inspect.State != nil {
		status = inspect.State.Status
		running = inspect.State.Running
	}
	return ContainerState{Status: status, Running: running}, nil
}

func (d *DockerDriver) ExecInContainer(ctx context.Context, name string, argv []string) (ExecResult, error) {
	createOpts := container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.client.ContainerExecCreate(ctx, name, createOpts)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: create: %v", ErrExecFailed, err)
	}

	attached, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: attach: %v", ErrExecFailed, err)
	}
	defer attached.Close()

	var stdout, stderr bytes.Buffer
	start := time.Now()
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attached.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ExecResult{}, ctx.Err()
	}

	inspect, err := d.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: inspect: %v", ErrExecFailed, err)
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}, nil
}

func (d *DockerDriver) ContainerStats(ctx context.Context, name string) (ContainerStats, error) {
	resp, err := d.client.ContainerStatsOneShot(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerStats{}, ErrContainerNotFound
		}
		return ContainerStats{}, fmt.Errorf("stats %s: %w", name, err)
	}
	defer resp.Body.Close()

	var v container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return ContainerStats{}, fmt.Errorf("decode stats %s: %w", name, err)
	}

	memMB := float64(v.MemoryStats.Usage) / 1024 / 1024
	cpuPct := cpuPercent(v)
	return ContainerStats{MemMB: memMB, CPUPct: cpuPct}, nil
}

func (d *DockerDriver) RestartContainer(ctx context.Context, name string) error {
	timeout := 10
	if err := d.client.ContainerRestart(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return ErrContainerNotFound
		}
		return fmt.Errorf("restart %s: %w", name, err)
	}
	return nil
}

func cpuPercent(v container.StatsResponse) float64 {
	cpuDelta := float64(v.CPUStats.CPUUsage.TotalUsage) - float64(v.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(v.CPUStats.SystemUsage) - float64(v.PreCPUStats.SystemUsage)
	if sysDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	onlineCPUs := float64(v.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}
	return (cpuDelta / sysDelta) * onlineCPUs * 100.0
}
