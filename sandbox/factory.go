package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/metrics"
)

// Supported runtime backends.
const (
	BackendDocker = "docker"
	BackendPodman = "podman"
)

// NewRuntime creates the runtime client selected by runner.backend.
func NewRuntime(cfg *config.Config, logger *zap.Logger) (RuntimeClient, error) {
	switch cfg.Runner.Backend {
	case BackendDocker:
		cli, err := NewDockerClient()
		if err != nil {
			return nil, err
		}
		return NewDockerRuntime(logger, cli), nil
	case BackendPodman:
		return NewPodmanRuntime(logger, WithPodmanBinary(cfg.Runner.PodmanBinary)), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Runner.Backend)
	}
}

// NewExecutor wires a ProjectExecutor from the application configuration.
func NewExecutor(
	cfg *config.Config,
	logger *zap.Logger,
	ws WorkspaceResolver,
	runtime RuntimeClient,
	m *metrics.Metrics,
) *ProjectExecutor {
	lifecycle := NewLifecycleManager(logger, runtime, NewConfig(cfg), WithLifecycleMetrics(m))
	return NewProjectExecutor(logger, ws, NewCommandResolverFromConfig(cfg), lifecycle,
		WithExecutorMetrics(m),
		WithProjectSerialization(cfg.Runner.SerializePerProject))
}
