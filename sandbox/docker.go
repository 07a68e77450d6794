package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

const nanoCPUsPerCPU int64 = 1_000_000_000

// DockerRuntime implements RuntimeClient against the Docker Engine API.
type DockerRuntime struct {
	logger *zap.Logger
	cli    client.ContainerAPIClient
}

// NewDockerClient connects to the daemon named by the DOCKER_* environment.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// NewDockerRuntime wraps an Engine API client.
func NewDockerRuntime(logger *zap.Logger, cli client.ContainerAPIClient) *DockerRuntime {
	return &DockerRuntime{
		logger: logger,
		cli:    cli,
	}
}

// CreateContainer creates a stopped container with the project directory
// bind-mounted read-write at spec.MountPath, which is also the working
// directory.
func (d *DockerRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (ContainerHandle, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		WorkingDir: spec.MountPath,
		Labels:     spec.Labels,
		Tty:        false,
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: spec.HostDir,
				Target: spec.MountPath,
			},
		},
		Resources: container.Resources{
			Memory:     spec.Limits.MemoryBytes,
			MemorySwap: spec.Limits.MemoryBytes,
			NanoCPUs:   spec.Limits.CPUCount * nanoCPUsPerCPU,
		},
		AutoRemove: false,
	}
	if !spec.NetworkEnabled {
		hostCfg.NetworkMode = "none"
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return ContainerHandle{}, fmt.Errorf("failed to create container: %w", err)
	}

	for _, warning := range resp.Warnings {
		d.logger.Warn("docker create warning",
			zap.String("container_id", resp.ID),
			zap.String("warning", warning))
	}

	return ContainerHandle{ID: resp.ID}, nil
}

// StartContainer starts a created container.
func (d *DockerRuntime) StartContainer(ctx context.Context, handle ContainerHandle) error {
	if err := d.cli.ContainerStart(ctx, handle.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", handle.ID, err)
	}
	return nil
}

// StreamLogs follows the container's log stream. The daemon multiplexes
// stdout and stderr into frames; the returned reader carries their payloads
// in arrival order.
func (d *DockerRuntime) StreamLogs(ctx context.Context, handle ContainerHandle, opts LogOptions) (io.ReadCloser, error) {
	raw, err := d.cli.ContainerLogs(ctx, handle.ID, container.LogsOptions{
		ShowStdout: opts.Stdout,
		ShowStderr: opts.Stderr,
		Follow:     opts.Follow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs for %s: %w", handle.ID, err)
	}

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, raw)
		pw.CloseWithError(copyErr)
	}()

	return &demuxedLogs{PipeReader: pr, raw: raw}, nil
}

// RemoveContainer deletes the container, killing it first when force is set.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, handle ContainerHandle, force bool) error {
	if err := d.cli.ContainerRemove(ctx, handle.ID, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", handle.ID, err)
	}
	return nil
}

// demuxedLogs closes both the demultiplexed pipe and the daemon stream.
type demuxedLogs struct {
	*io.PipeReader
	raw io.ReadCloser
}

func (l *demuxedLogs) Close() error {
	_ = l.PipeReader.Close()
	return l.raw.Close()
}

// Close releases the underlying client connection.
func (d *DockerRuntime) Close() error {
	if c, ok := d.cli.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
