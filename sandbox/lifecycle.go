package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/metrics"
)

// Runtime operation names used for logging and the runtime op histogram.
const (
	OpCreate = "create"
	OpStart  = "start"
	OpLogs   = "logs"
	OpRemove = "remove"
)

// ManagedLabel marks every container the lifecycle creates.
const ManagedLabel = "coderunner.managed"

// ErrCleanupFailure wraps a container removal error. It is logged and never
// returned to callers.
var ErrCleanupFailure = errors.New("container cleanup failed")

// Config holds the container execution policy.
type Config struct {
	Image          string
	MountPath      string
	Limits         ResourceLimits
	CollectTimeout time.Duration
	DaemonTimeout  time.Duration
	RemoveTimeout  time.Duration
	MaxOutputBytes int
	NetworkEnabled bool
}

// DefaultConfig returns the built-in execution policy.
func DefaultConfig() Config {
	return Config{
		Image:     "my-ide-runner",
		MountPath: "/app",
		Limits: ResourceLimits{
			MemoryBytes: 512 * 1024 * 1024,
			CPUCount:    1,
		},
		CollectTimeout: 10 * time.Second,
		DaemonTimeout:  30 * time.Second,
		RemoveTimeout:  10 * time.Second,
		MaxOutputBytes: 1024 * 1024,
	}
}

// NewConfig builds the execution policy from the runner section of the
// application configuration.
func NewConfig(cfg *config.Config) Config {
	r := cfg.Runner
	return Config{
		Image:     r.Image,
		MountPath: r.MountPath,
		Limits: ResourceLimits{
			MemoryBytes: int64(r.MemoryMB) * 1024 * 1024,
			CPUCount:    int64(r.CPUCount),
		},
		CollectTimeout: cfg.CollectTimeout(),
		DaemonTimeout:  cfg.DaemonTimeout(),
		RemoveTimeout:  cfg.RemoveTimeout(),
		MaxOutputBytes: r.MaxOutputKB * 1024,
		NetworkEnabled: r.NetworkEnabled,
	}
}

// LifecycleManager runs one shell command in one fresh container and always
// removes the container afterwards.
type LifecycleManager struct {
	logger  *zap.Logger
	runtime RuntimeClient
	config  Config
	metrics *metrics.Metrics
}

// LifecycleOption defines a functional option for LifecycleManager
type LifecycleOption func(*LifecycleManager)

// WithLifecycleMetrics records runtime timings and cleanup failures.
func WithLifecycleMetrics(m *metrics.Metrics) LifecycleOption {
	return func(l *LifecycleManager) {
		l.metrics = m
	}
}

// NewLifecycleManager creates a LifecycleManager on top of a runtime client.
func NewLifecycleManager(logger *zap.Logger, runtime RuntimeClient, cfg Config, opts ...LifecycleOption) *LifecycleManager {
	m := &LifecycleManager{
		logger:  logger,
		runtime: runtime,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run mounts hostDir into a new container, runs shellCommand under sh -c and
// returns the combined stdout and stderr collected before the container
// exits or the collection deadline passes. Reaching the deadline is not an
// error; the text gathered so far is returned.
//
// Once the container exists it is removed exactly once, whatever happens
// afterwards. Removal failures are logged, never returned.
func (m *LifecycleManager) Run(ctx context.Context, hostDir, shellCommand string) (string, error) {
	handle, err := m.create(ctx, hostDir, shellCommand)
	if err != nil {
		return "", err
	}
	defer m.remove(ctx, handle)

	if err := m.start(ctx, handle); err != nil {
		return "", err
	}

	return m.collect(ctx, handle)
}

func (m *LifecycleManager) create(ctx context.Context, hostDir, shellCommand string) (ContainerHandle, error) {
	spec := ContainerSpec{
		Name:           "coderunner-" + uuid.NewString(),
		Image:          m.config.Image,
		HostDir:        hostDir,
		MountPath:      m.config.MountPath,
		Command:        []string{"sh", "-c", shellCommand},
		Limits:         m.config.Limits,
		NetworkEnabled: m.config.NetworkEnabled,
		Labels:         map[string]string{ManagedLabel: "true"},
	}

	opCtx, cancel := m.daemonContext(ctx)
	defer cancel()

	start := time.Now()
	handle, err := m.runtime.CreateContainer(opCtx, spec)
	m.metrics.ObserveRuntimeOp(OpCreate, time.Since(start))
	if err != nil {
		return ContainerHandle{}, err
	}
	if handle.ID == "" {
		return ContainerHandle{}, fmt.Errorf("failed to create container: runtime returned an empty id")
	}

	m.metrics.ContainerCreated()
	m.logger.Debug("container created",
		zap.String("container_id", handle.ID),
		zap.String("name", spec.Name),
		zap.String("image", spec.Image),
		zap.String("host_dir", hostDir))

	return handle, nil
}

func (m *LifecycleManager) start(ctx context.Context, handle ContainerHandle) error {
	opCtx, cancel := m.daemonContext(ctx)
	defer cancel()

	start := time.Now()
	err := m.runtime.StartContainer(opCtx, handle)
	m.metrics.ObserveRuntimeOp(OpStart, time.Since(start))
	return err
}

// collect follows the log stream until it ends, the deadline passes or ctx
// is cancelled. The stream is drained past the output cap so the container
// never blocks on a full pipe.
func (m *LifecycleManager) collect(ctx context.Context, handle ContainerHandle) (string, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	buf := newOutputBuffer(m.config.MaxOutputBytes)
	started := time.Now()
	done := make(chan error, 1)

	go func() {
		stream, err := m.runtime.StreamLogs(streamCtx, handle, LogOptions{Stdout: true, Stderr: true, Follow: true})
		if err != nil {
			done <- err
			return
		}
		defer stream.Close()

		_, err = buf.ReadFrom(stream)
		done <- err
	}()

	timer := time.NewTimer(m.config.CollectTimeout)
	defer timer.Stop()

	defer func() {
		m.metrics.ObserveRuntimeOp(OpLogs, time.Since(started))
		if buf.Truncated() {
			m.metrics.OutputTruncated()
			m.logger.Info("output truncated",
				zap.String("container_id", handle.ID),
				zap.Int("limit_bytes", m.config.MaxOutputBytes))
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to collect output: %w", err)
		}
		return buf.String(), nil
	case <-timer.C:
		m.metrics.CollectDeadlineReached()
		m.logger.Info("collection deadline reached",
			zap.String("container_id", handle.ID),
			zap.Duration("deadline", m.config.CollectTimeout))
		return buf.String(), nil
	case <-ctx.Done():
		return "", fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
}

// remove force-deletes the container on a context detached from the
// caller's cancellation so a cancelled request still cleans up.
func (m *LifecycleManager) remove(ctx context.Context, handle ContainerHandle) {
	removeCtx, cancel := withOptionalTimeout(context.WithoutCancel(ctx), m.config.RemoveTimeout)
	defer cancel()

	start := time.Now()
	err := m.runtime.RemoveContainer(removeCtx, handle, true)
	m.metrics.ObserveRuntimeOp(OpRemove, time.Since(start))
	if err != nil {
		m.metrics.CleanupFailed()
		m.logger.Error("failed to remove container",
			zap.String("container_id", handle.ID),
			zap.Error(fmt.Errorf("%w: %w", ErrCleanupFailure, err)))
		return
	}

	m.metrics.ContainerRemoved()
	m.logger.Debug("container removed", zap.String("container_id", handle.ID))
}

func (m *LifecycleManager) daemonContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withOptionalTimeout(ctx, m.config.DaemonTimeout)
}

// withOptionalTimeout treats a non-positive timeout as no timeout.
func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// outputBuffer keeps at most limit bytes and silently discards the rest.
// It is safe for one writer and concurrent readers.
type outputBuffer struct {
	mu        sync.Mutex
	data      []byte
	limit     int
	truncated bool
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := len(p)
	if b.limit > 0 {
		room = min(room, b.limit-len(b.data))
	}
	if room < len(p) {
		b.truncated = true
	}
	if room > 0 {
		b.data = append(b.data, p[:room]...)
	}
	return len(p), nil
}

// ReadFrom copies r into the buffer until EOF.
func (b *outputBuffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			_, _ = b.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// String returns the collected bytes as text. Invalid UTF-8, including a
// multi-byte sequence split by the cap, becomes U+FFFD.
func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.ToValidUTF8(string(b.data), "\uFFFD")
}

// Truncated reports whether any output was discarded.
func (b *outputBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
