package sandbox

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// mockRuntime implements RuntimeClient for testing
type mockRuntime struct {
	mu sync.Mutex

	handleID  string
	output    string
	block     bool          // keep the stream open after output until ctx is done
	delay     time.Duration // pause before the stream returns output
	readErr   error         // stream fails after output
	createErr error
	startErr  error
	logsErr   error
	removeErr error

	specs         []ContainerSpec
	creates       int
	starts        int
	streams       int
	removes       map[string]int
	removeCtxErrs []error
	running       int
	maxRunning    int
}

func newMockRuntime(output string) *mockRuntime {
	return &mockRuntime{
		handleID: "c-1",
		output:   output,
		removes:  make(map[string]int),
	}
}

func (m *mockRuntime) CreateContainer(_ context.Context, spec ContainerSpec) (ContainerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.specs = append(m.specs, spec)
	if m.createErr != nil {
		return ContainerHandle{}, m.createErr
	}
	m.running++
	m.maxRunning = max(m.maxRunning, m.running)
	return ContainerHandle{ID: m.handleID}, nil
}

func (m *mockRuntime) StartContainer(_ context.Context, _ ContainerHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *mockRuntime) StreamLogs(ctx context.Context, _ ContainerHandle, _ LogOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	m.streams++
	logsErr, delay := m.logsErr, m.delay
	m.mu.Unlock()

	if logsErr != nil {
		return nil, logsErr
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return &mockStream{ctx: ctx, data: []byte(m.output), block: m.block, err: m.readErr}, nil
}

func (m *mockRuntime) RemoveContainer(ctx context.Context, handle ContainerHandle, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes[handle.ID]++
	m.removeCtxErrs = append(m.removeCtxErrs, ctx.Err())
	m.running--
	return m.removeErr
}

func (m *mockRuntime) removeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.removes {
		total += n
	}
	return total
}

// mockStream returns data, then either EOF, err, or blocks until ctx ends.
type mockStream struct {
	ctx   context.Context
	data  []byte
	block bool
	err   error
}

func (s *mockStream) Read(p []byte) (int, error) {
	if len(s.data) > 0 {
		n := copy(p, s.data)
		s.data = s.data[n:]
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	if s.block {
		<-s.ctx.Done()
		return 0, s.ctx.Err()
	}
	return 0, io.EOF
}

func (*mockStream) Close() error { return nil }

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu      sync.Mutex
	calls   [][]string
	results map[string]mockCommandResult // keyed by podman subcommand
	stream  string
}

type mockCommandResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	if len(args) > 1 {
		if result, exists := m.results[args[1]]; exists {
			return result.stdout, result.stderr, result.exitCode, result.err
		}
	}
	return "", "", 0, nil
}

func (m *MockCommandRunner) StreamCommand(_ context.Context, args []string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	if result, exists := m.results["logs"]; exists && result.err != nil {
		return nil, result.err
	}
	return io.NopCloser(strings.NewReader(m.stream)), nil
}

// mutationCountingFs counts every call that could change the filesystem.
type mutationCountingFs struct {
	afero.Fs
	mu        sync.Mutex
	mutations []string
}

func (f *mutationCountingFs) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, op)
}

func (f *mutationCountingFs) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = nil
}

func (f *mutationCountingFs) Create(name string) (afero.File, error) {
	f.record("create " + name)
	return f.Fs.Create(name)
}

func (f *mutationCountingFs) Mkdir(name string, perm os.FileMode) error {
	f.record("mkdir " + name)
	return f.Fs.Mkdir(name, perm)
}

func (f *mutationCountingFs) MkdirAll(path string, perm os.FileMode) error {
	f.record("mkdirall " + path)
	return f.Fs.MkdirAll(path, perm)
}

func (f *mutationCountingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		f.record("openfile " + name)
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *mutationCountingFs) Remove(name string) error {
	f.record("remove " + name)
	return f.Fs.Remove(name)
}

func (f *mutationCountingFs) RemoveAll(path string) error {
	f.record("removeall " + path)
	return f.Fs.RemoveAll(path)
}

func (f *mutationCountingFs) Rename(oldname, newname string) error {
	f.record("rename " + oldname)
	return f.Fs.Rename(oldname, newname)
}

func (f *mutationCountingFs) Chmod(name string, mode os.FileMode) error {
	f.record("chmod " + name)
	return f.Fs.Chmod(name, mode)
}

func (f *mutationCountingFs) Chown(name string, uid, gid int) error {
	f.record("chown " + name)
	return f.Fs.Chown(name, uid, gid)
}

func (f *mutationCountingFs) Chtimes(name string, atime, mtime time.Time) error {
	f.record("chtimes " + name)
	return f.Fs.Chtimes(name, atime, mtime)
}
