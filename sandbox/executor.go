package sandbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/metrics"
	"github.com/isdmx/coderunner/workspace"
)

// ExecutionRequest names the project file to run. EntryPath is relative to
// the project root.
type ExecutionRequest struct {
	ProjectID string
	EntryPath string
	Language  string
}

// ProjectExecutor implements Executor. It resolves the project directory and
// the run command, then hands both to a LifecycleManager. It never writes to
// the workspace; only the program running in the container can.
type ProjectExecutor struct {
	logger    *zap.Logger
	workspace WorkspaceResolver
	resolver  *CommandResolver
	lifecycle *LifecycleManager
	metrics   *metrics.Metrics
	locks     *projectLocks
}

// ExecutorOption defines a functional option for ProjectExecutor
type ExecutorOption func(*ProjectExecutor)

// WithExecutorMetrics records one execution sample per request.
func WithExecutorMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *ProjectExecutor) {
		e.metrics = m
	}
}

// WithProjectSerialization runs at most one execution per project at a time
// when enabled.
func WithProjectSerialization(enabled bool) ExecutorOption {
	return func(e *ProjectExecutor) {
		if enabled {
			e.locks = newProjectLocks()
		} else {
			e.locks = nil
		}
	}
}

// NewProjectExecutor creates a ProjectExecutor.
func NewProjectExecutor(
	logger *zap.Logger,
	ws WorkspaceResolver,
	resolver *CommandResolver,
	lifecycle *LifecycleManager,
	opts ...ExecutorOption,
) *ProjectExecutor {
	e := &ProjectExecutor{
		logger:    logger,
		workspace: ws,
		resolver:  resolver,
		lifecycle: lifecycle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the request's entry file in a fresh container and returns
// its output, or a failure describing why it could not run. Failures never
// escape as Go errors; a program that fails to compile or exits non-zero is
// still a success whose output carries the diagnostics.
func (e *ProjectExecutor) Execute(ctx context.Context, req ExecutionRequest) ExecutionResult {
	start := time.Now()
	result := e.execute(ctx, req)

	outcome := metrics.OutcomeSuccess
	if failure := result.Err(); failure != nil {
		outcome = failure.Kind.outcome()
		e.logger.Warn("execution failed",
			zap.String("project_id", req.ProjectID),
			zap.String("language", req.Language),
			zap.String("kind", string(failure.Kind)),
			zap.String("error", failure.Message))
	} else {
		e.logger.Info("execution completed",
			zap.String("project_id", req.ProjectID),
			zap.String("language", req.Language),
			zap.Duration("elapsed", time.Since(start)))
	}
	e.metrics.ObserveExecution(e.languageLabel(req.Language), outcome, time.Since(start))

	return result
}

func (e *ProjectExecutor) execute(ctx context.Context, req ExecutionRequest) ExecutionResult {
	hostDir, err := e.workspace.Resolve(req.ProjectID, "")
	if err != nil {
		return Failure(workspaceErrorKind(err), err.Error())
	}

	command, err := e.resolver.Resolve(req.Language, req.EntryPath)
	if err != nil {
		if errors.Is(err, ErrUnsupportedLanguage) {
			return Failure(KindUnsupportedLanguage, ErrUnsupportedLanguage.Error())
		}
		return Failure(KindInvalidRequest, err.Error())
	}

	if e.locks != nil {
		unlock, err := e.locks.Lock(ctx, req.ProjectID)
		if err != nil {
			return Failure(KindContainerInfrastructure, "execution cancelled: "+err.Error())
		}
		defer unlock()
	}

	e.logger.Debug("running project",
		zap.String("project_id", req.ProjectID),
		zap.String("host_dir", hostDir),
		zap.String("command", command))

	output, err := e.lifecycle.Run(ctx, hostDir, command)
	if err != nil {
		return Failure(KindContainerInfrastructure, err.Error())
	}
	return Success(output)
}

// languageLabel keeps the metrics label set bounded to known languages.
func (e *ProjectExecutor) languageLabel(language string) string {
	if e.resolver.Supports(language) {
		return normalizeLanguage(language)
	}
	return "other"
}

func workspaceErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, workspace.ErrProjectNotFound):
		return KindWorkspaceNotFound
	case workspace.IsInvalid(err):
		return KindInvalidRequest
	default:
		return KindContainerInfrastructure
	}
}
