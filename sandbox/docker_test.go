package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testAPIVersion = "1.47"

// fakeDaemon serves the subset of the Engine API used by DockerRuntime.
type fakeDaemon struct {
	mu          sync.Mutex
	created     container.CreateRequest
	createdName string
	started     []string
	removed     []string
	removeForce string
	failCreate  bool
}

func (d *fakeDaemon) handler() http.Handler {
	prefix := "/v" + testAPIVersion
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+prefix+"/containers/create", func(w http.ResponseWriter, r *http.Request) {
		if d.failCreate {
			writeDaemonError(w, http.StatusNotFound, "No such image: my-ide-runner:latest")
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&d.created); err != nil {
			writeDaemonError(w, http.StatusBadRequest, err.Error())
			return
		}
		d.createdName = r.URL.Query().Get("name")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(container.CreateResponse{ID: "abc123", Warnings: []string{"memory swap disabled"}})
	})

	mux.HandleFunc("POST "+prefix+"/containers/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.started = append(d.started, r.PathValue("id"))
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET "+prefix+"/containers/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("follow") != "1" {
			writeDaemonError(w, http.StatusBadRequest, "expected follow")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.docker.multiplexed-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte("compiling\n"))
		_, _ = stdcopy.NewStdWriter(w, stdcopy.Stderr).Write([]byte("warning: unused\n"))
		_, _ = stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte("done\n"))
	})

	mux.HandleFunc("DELETE "+prefix+"/containers/{id}", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.removed = append(d.removed, r.PathValue("id"))
		d.removeForce = r.URL.Query().Get("force")
		d.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeDaemonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func newTestDockerRuntime(t *testing.T, daemon *fakeDaemon) *DockerRuntime {
	t.Helper()
	srv := httptest.NewServer(daemon.handler())
	t.Cleanup(srv.Close)

	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+srv.Listener.Addr().String()),
		client.WithHTTPClient(srv.Client()),
		client.WithVersion(testAPIVersion),
	)
	require.NoError(t, err)

	rt := NewDockerRuntime(zaptest.NewLogger(t), cli)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestDockerRuntime(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateContainer", func(t *testing.T) {
		daemon := &fakeDaemon{}
		rt := newTestDockerRuntime(t, daemon)

		handle, err := rt.CreateContainer(ctx, ContainerSpec{
			Name:      "coderunner-test",
			Image:     "my-ide-runner",
			HostDir:   "/srv/workspaces/p1",
			MountPath: "/app",
			Command:   []string{"sh", "-c", "python3 main.py"},
			Limits:    ResourceLimits{MemoryBytes: 512 * 1024 * 1024, CPUCount: 2},
			Labels:    map[string]string{ManagedLabel: "true"},
		})
		require.NoError(t, err)
		assert.Equal(t, "abc123", handle.ID)

		daemon.mu.Lock()
		defer daemon.mu.Unlock()
		assert.Equal(t, "coderunner-test", daemon.createdName)
		require.NotNil(t, daemon.created.Config)
		assert.Equal(t, "my-ide-runner", daemon.created.Image)
		assert.Equal(t, []string{"sh", "-c", "python3 main.py"}, []string(daemon.created.Cmd))
		assert.Equal(t, "/app", daemon.created.WorkingDir)
		assert.Equal(t, "true", daemon.created.Labels[ManagedLabel])

		hostCfg := daemon.created.HostConfig
		require.NotNil(t, hostCfg)
		assert.False(t, hostCfg.AutoRemove)
		assert.Equal(t, container.NetworkMode("none"), hostCfg.NetworkMode)
		assert.Equal(t, int64(512*1024*1024), hostCfg.Memory)
		assert.Equal(t, int64(2_000_000_000), hostCfg.NanoCPUs)
		require.Len(t, hostCfg.Mounts, 1)
		assert.Equal(t, mount.TypeBind, hostCfg.Mounts[0].Type)
		assert.Equal(t, "/srv/workspaces/p1", hostCfg.Mounts[0].Source)
		assert.Equal(t, "/app", hostCfg.Mounts[0].Target)
		assert.False(t, hostCfg.Mounts[0].ReadOnly)
	})

	t.Run("NetworkEnabled", func(t *testing.T) {
		daemon := &fakeDaemon{}
		rt := newTestDockerRuntime(t, daemon)

		_, err := rt.CreateContainer(ctx, ContainerSpec{Image: "img", HostDir: "/h", MountPath: "/app", NetworkEnabled: true})
		require.NoError(t, err)

		daemon.mu.Lock()
		defer daemon.mu.Unlock()
		assert.Empty(t, daemon.created.HostConfig.NetworkMode)
	})

	t.Run("CreateFailure", func(t *testing.T) {
		rt := newTestDockerRuntime(t, &fakeDaemon{failCreate: true})

		_, err := rt.CreateContainer(ctx, ContainerSpec{Image: "my-ide-runner", HostDir: "/h", MountPath: "/app"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No such image")
	})

	t.Run("StartStreamRemove", func(t *testing.T) {
		daemon := &fakeDaemon{}
		rt := newTestDockerRuntime(t, daemon)
		handle := ContainerHandle{ID: "abc123"}

		require.NoError(t, rt.StartContainer(ctx, handle))

		stream, err := rt.StreamLogs(ctx, handle, LogOptions{Stdout: true, Stderr: true, Follow: true})
		require.NoError(t, err)
		data, err := io.ReadAll(stream)
		require.NoError(t, err)
		require.NoError(t, stream.Close())
		assert.Equal(t, "compiling\nwarning: unused\ndone\n", string(data))

		require.NoError(t, rt.RemoveContainer(ctx, handle, true))

		daemon.mu.Lock()
		defer daemon.mu.Unlock()
		assert.Equal(t, []string{"abc123"}, daemon.started)
		assert.Equal(t, []string{"abc123"}, daemon.removed)
		assert.Equal(t, "1", daemon.removeForce)
	})

	t.Run("LifecycleOverDocker", func(t *testing.T) {
		daemon := &fakeDaemon{}
		rt := newTestDockerRuntime(t, daemon)
		lm := NewLifecycleManager(zaptest.NewLogger(t), rt, testConfig())

		out, err := lm.Run(ctx, "/srv/workspaces/p1", "python3 main.py")
		require.NoError(t, err)
		assert.Equal(t, "compiling\nwarning: unused\ndone\n", out)

		daemon.mu.Lock()
		defer daemon.mu.Unlock()
		assert.Equal(t, []string{"abc123"}, daemon.removed)
	})
}
