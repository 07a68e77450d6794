package sandbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/metrics"
	"github.com/isdmx/coderunner/workspace"
)

const testWorkspaceRoot = "/workspaces"

type executorFixture struct {
	executor *ProjectExecutor
	runtime  *mockRuntime
	fs       *mutationCountingFs
	metrics  *metrics.Metrics
}

func newExecutorFixture(t *testing.T, output string, opts ...ExecutorOption) *executorFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	base := afero.NewMemMapFs()
	seed, err := workspace.NewStore(base, testWorkspaceRoot, logger)
	require.NoError(t, err)
	require.NoError(t, seed.CreateProject("p1", "python"))
	require.NoError(t, seed.CreateProject("j1", "java"))

	spy := &mutationCountingFs{Fs: base}
	store, err := workspace.NewStore(spy, testWorkspaceRoot, logger)
	require.NoError(t, err)
	spy.reset()

	rt := newMockRuntime(output)
	m := metrics.New()
	lm := NewLifecycleManager(logger, rt, testConfig(), WithLifecycleMetrics(m))
	opts = append([]ExecutorOption{WithExecutorMetrics(m)}, opts...)

	return &executorFixture{
		executor: NewProjectExecutor(logger, store, NewCommandResolver(DefaultLanguagePolicies()...), lm, opts...),
		runtime:  rt,
		fs:       spy,
		metrics:  m,
	}
}

func TestProjectExecutorScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("PythonHelloWorld", func(t *testing.T) {
		f := newExecutorFixture(t, "Hello Python World!\n")

		result := f.executor.Execute(ctx, ExecutionRequest{ProjectID: "p1", EntryPath: "main.py", Language: "python"})

		out, ok := result.Output()
		require.True(t, ok, "unexpected failure: %v", result.Err())
		assert.Equal(t, "Hello Python World!\n", out)

		require.Len(t, f.runtime.specs, 1)
		assert.Equal(t, filepath.Join(testWorkspaceRoot, "p1"), f.runtime.specs[0].HostDir)
		assert.Equal(t, []string{"sh", "-c", "python3 main.py"}, f.runtime.specs[0].Command)
		assert.Equal(t, 1, f.runtime.removes["c-1"])
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExecutionsTotal.WithLabelValues("python", metrics.OutcomeSuccess)))
	})

	t.Run("UnsupportedLanguage", func(t *testing.T) {
		f := newExecutorFixture(t, "")

		result := f.executor.Execute(ctx, ExecutionRequest{ProjectID: "p1", EntryPath: "main.rb", Language: "ruby"})

		require.False(t, result.Succeeded())
		assert.Equal(t, KindUnsupportedLanguage, result.Err().Kind)
		assert.Equal(t, "unsupported language", result.Err().Message)
		assert.Equal(t, 0, f.runtime.creates)
		assert.Equal(t, 0, f.runtime.removeCount())
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExecutionsTotal.WithLabelValues("other", metrics.OutcomeUnsupportedLanguage)))
	})

	t.Run("CompileErrorIsOutput", func(t *testing.T) {
		diag := "src/Main.java:3: error: ';' expected\n        System.out.println(\"hi\")\n                                 ^\n1 error\n"
		f := newExecutorFixture(t, diag)

		result := f.executor.Execute(ctx, ExecutionRequest{ProjectID: "j1", EntryPath: "src/Main.java", Language: "Java"})

		out, ok := result.Output()
		require.True(t, ok)
		assert.Equal(t, diag, out)
		assert.Equal(t, []string{"sh", "-c", "javac src/Main.java && java -cp src Main"}, f.runtime.specs[0].Command)
	})

	t.Run("DaemonFailureDuringCollection", func(t *testing.T) {
		f := newExecutorFixture(t, "")
		f.runtime.logsErr = errors.New("Cannot connect to the Docker daemon")

		result := f.executor.Execute(ctx, ExecutionRequest{ProjectID: "p1", EntryPath: "main.py", Language: "python"})

		require.False(t, result.Succeeded())
		assert.Equal(t, KindContainerInfrastructure, result.Err().Kind)
		assert.Contains(t, result.Err().Message, "Cannot connect to the Docker daemon")
		assert.Equal(t, 1, f.runtime.removes["c-1"])
	})
}

func TestProjectExecutorRequestErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		req  ExecutionRequest
		kind ErrorKind
	}{
		{"UnknownProject", ExecutionRequest{ProjectID: "ghost", EntryPath: "main.py", Language: "python"}, KindWorkspaceNotFound},
		{"EscapingProjectID", ExecutionRequest{ProjectID: "../etc", EntryPath: "main.py", Language: "python"}, KindInvalidRequest},
		{"EmptyProjectID", ExecutionRequest{ProjectID: "", EntryPath: "main.py", Language: "python"}, KindInvalidRequest},
		{"EscapingEntry", ExecutionRequest{ProjectID: "p1", EntryPath: "../../etc/passwd", Language: "python"}, KindInvalidRequest},
		{"AbsoluteEntry", ExecutionRequest{ProjectID: "p1", EntryPath: "/etc/passwd", Language: "python"}, KindInvalidRequest},
		{"MissingEntry", ExecutionRequest{ProjectID: "p1", EntryPath: "", Language: "python"}, KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t, "")

			result := f.executor.Execute(ctx, tt.req)

			require.False(t, result.Succeeded())
			assert.Equal(t, tt.kind, result.Err().Kind)
			assert.NotEmpty(t, result.Err().Message)
			assert.Equal(t, 0, f.runtime.creates)
		})
	}

	t.Run("WorkspaceMessagePassesThrough", func(t *testing.T) {
		f := newExecutorFixture(t, "")
		result := f.executor.Execute(ctx, ExecutionRequest{ProjectID: "ghost", EntryPath: "main.py", Language: "python"})
		assert.Equal(t, "project not found: ghost", result.Err().Message)
	})
}

func TestProjectExecutorDoesNotWriteWorkspace(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t, "output\n")

	requests := []ExecutionRequest{
		{ProjectID: "p1", EntryPath: "main.py", Language: "python"},
		{ProjectID: "j1", EntryPath: "src/Main.java", Language: "java"},
		{ProjectID: "p1", EntryPath: "main.rb", Language: "ruby"},
		{ProjectID: "ghost", EntryPath: "main.py", Language: "python"},
		{ProjectID: "p1", EntryPath: "../x", Language: "python"},
	}
	for _, req := range requests {
		f.executor.Execute(ctx, req)
	}

	assert.Empty(t, f.fs.mutations)
}

func TestProjectExecutorSerialization(t *testing.T) {
	f := newExecutorFixture(t, "ok\n", WithProjectSerialization(true))
	f.runtime.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := f.executor.Execute(context.Background(), ExecutionRequest{ProjectID: "p1", EntryPath: "main.py", Language: "python"})
			assert.True(t, result.Succeeded())
		}()
	}
	wg.Wait()

	f.runtime.mu.Lock()
	defer f.runtime.mu.Unlock()
	assert.Equal(t, 4, f.runtime.creates)
	assert.Equal(t, 1, f.runtime.maxRunning)
	assert.Equal(t, 0, f.executor.locks.size())
}

func TestProjectExecutorSerializationCancelled(t *testing.T) {
	f := newExecutorFixture(t, "ok\n", WithProjectSerialization(true))

	unlock, err := f.executor.locks.Lock(context.Background(), "p1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := f.executor.Execute(ctx, ExecutionRequest{ProjectID: "p1", EntryPath: "main.py", Language: "python"})
	require.False(t, result.Succeeded())
	assert.Equal(t, KindContainerInfrastructure, result.Err().Kind)
	assert.Equal(t, 0, f.runtime.creates)
}
