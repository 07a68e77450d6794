package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Executor runs a project file inside a fresh container.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) ExecutionResult
}

// WorkspaceResolver maps a project id and a project-relative path to an
// absolute host path. It must not modify the workspace.
type WorkspaceResolver interface {
	Resolve(projectID, relPath string) (string, error)
}

// RuntimeClient is the narrow set of container operations the lifecycle
// needs. Implementations wrap a container daemon or CLI.
type RuntimeClient interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) (ContainerHandle, error)
	StartContainer(ctx context.Context, handle ContainerHandle) error
	// StreamLogs returns the container's output until it exits. The stream
	// ends early when ctx is cancelled.
	StreamLogs(ctx context.Context, handle ContainerHandle, opts LogOptions) (io.ReadCloser, error)
	RemoveContainer(ctx context.Context, handle ContainerHandle, force bool) error
}

// ResourceLimits caps what a single container may use.
type ResourceLimits struct {
	MemoryBytes int64
	CPUCount    int64
}

// ContainerHandle identifies a created container.
type ContainerHandle struct {
	ID string
}

// ContainerSpec describes the container to create.
type ContainerSpec struct {
	Name           string
	Image          string
	HostDir        string
	MountPath      string
	Command        []string
	Limits         ResourceLimits
	NetworkEnabled bool
	Labels         map[string]string
}

// LogOptions selects the streams to follow.
type LogOptions struct {
	Stdout bool
	Stderr bool
	Follow bool
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
	// StreamCommand starts the command and returns its combined stdout and
	// stderr. Closing the reader releases the process pipes.
	StreamCommand(ctx context.Context, args []string) (io.ReadCloser, error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// StreamCommand starts the command with stdout and stderr joined into one
// pipe. The reader sees io.EOF on a clean exit and the exit error otherwise.
func (RealCommandRunner) StreamCommand(ctx context.Context, args []string) (io.ReadCloser, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, err
	}

	go func() {
		pw.CloseWithError(cmd.Wait())
	}()

	return pr, nil
}
