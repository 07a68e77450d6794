package sandbox

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultPodmanBinary is the podman executable looked up on PATH.
const DefaultPodmanBinary = "podman"

// PodmanRuntime implements RuntimeClient by driving the podman CLI.
type PodmanRuntime struct {
	logger    *zap.Logger
	binary    string
	cmdRunner CommandRunner
}

// PodmanRuntimeOption defines a functional option for PodmanRuntime
type PodmanRuntimeOption func(*PodmanRuntime)

// WithPodmanCommandRunner sets the CommandRunner for PodmanRuntime
func WithPodmanCommandRunner(cmdRunner CommandRunner) PodmanRuntimeOption {
	return func(p *PodmanRuntime) {
		p.cmdRunner = cmdRunner
	}
}

// WithPodmanBinary overrides the podman executable.
func WithPodmanBinary(binary string) PodmanRuntimeOption {
	return func(p *PodmanRuntime) {
		if binary != "" {
			p.binary = binary
		}
	}
}

// NewPodmanRuntime creates a new PodmanRuntime with default implementations and optional interfaces
func NewPodmanRuntime(logger *zap.Logger, opts ...PodmanRuntimeOption) *PodmanRuntime {
	runtime := &PodmanRuntime{
		logger:    logger,
		binary:    DefaultPodmanBinary,
		cmdRunner: &RealCommandRunner{}, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(runtime)
	}

	return runtime
}

// CreateContainer runs "podman create" and returns the new container id.
func (p *PodmanRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (ContainerHandle, error) {
	args := []string{p.binary, "create"}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}

	labelKeys := make([]string, 0, len(spec.Labels))
	for k := range spec.Labels {
		labelKeys = append(labelKeys, k)
	}
	sort.Strings(labelKeys)
	for _, k := range labelKeys {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, spec.Labels[k]))
	}

	if spec.Limits.MemoryBytes > 0 {
		args = append(args, "--memory", fmt.Sprintf("%d", spec.Limits.MemoryBytes))
	}
	if spec.Limits.CPUCount > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%d", spec.Limits.CPUCount))
	}
	if !spec.NetworkEnabled {
		args = append(args, "--network", "none")
	}

	args = append(args,
		"--volume", fmt.Sprintf("%s:%s", spec.HostDir, spec.MountPath),
		"--workdir", spec.MountPath,
		spec.Image,
	)
	args = append(args, spec.Command...)

	stdout, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return ContainerHandle{}, fmt.Errorf("failed to create container: %w", err)
	}
	if exitCode != 0 {
		return ContainerHandle{}, fmt.Errorf("podman create failed (exit %d): %s",
			exitCode, strings.TrimSpace(stderr))
	}

	id := strings.TrimSpace(stdout)
	if id == "" {
		return ContainerHandle{}, fmt.Errorf("podman create returned no container id")
	}
	return ContainerHandle{ID: id}, nil
}

// StartContainer runs "podman start".
func (p *PodmanRuntime) StartContainer(ctx context.Context, handle ContainerHandle) error {
	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, []string{p.binary, "start", handle.ID})
	if err != nil {
		return fmt.Errorf("failed to start container %s: %w", handle.ID, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("podman start failed (exit %d): %s",
			exitCode, strings.TrimSpace(stderr))
	}
	return nil
}

// StreamLogs runs "podman logs" and returns its joined output. podman writes
// the container's stdout and stderr to its own stdout and stderr, so both are
// always part of the stream.
func (p *PodmanRuntime) StreamLogs(ctx context.Context, handle ContainerHandle, opts LogOptions) (io.ReadCloser, error) {
	args := []string{p.binary, "logs"}
	if opts.Follow {
		args = append(args, "--follow")
	}
	args = append(args, handle.ID)

	stream, err := p.cmdRunner.StreamCommand(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs for %s: %w", handle.ID, err)
	}
	return stream, nil
}

// RemoveContainer runs "podman rm". Force kills a running container without
// a grace period.
func (p *PodmanRuntime) RemoveContainer(ctx context.Context, handle ContainerHandle, force bool) error {
	args := []string{p.binary, "rm"}
	if force {
		args = append(args, "--force", "--time", "0")
	}
	args = append(args, handle.ID)

	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", handle.ID, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("podman rm failed (exit %d): %s",
			exitCode, strings.TrimSpace(stderr))
	}
	return nil
}
