// Package sandbox runs project files inside short-lived containers.
//
// A ProjectExecutor resolves the project directory through a
// WorkspaceResolver and the shell command through a CommandResolver, then
// hands both to a LifecycleManager. The lifecycle creates one container per
// request with the project bind-mounted at the configured mount path, starts
// it, collects combined stdout and stderr until the container exits or the
// collection deadline passes, and always force-removes the container.
//
// Containers are driven through the RuntimeClient interface. DockerRuntime
// talks to the Docker Engine API; PodmanRuntime drives the podman CLI.
//
// Usage:
//
//	runtime, err := sandbox.NewRuntime(cfg, logger)
//	executor := sandbox.NewExecutor(cfg, logger, store, runtime, metrics)
//	result := executor.Execute(ctx, sandbox.ExecutionRequest{
//	    ProjectID: "p1",
//	    EntryPath: "main.py",
//	    Language:  "python",
//	})
package sandbox
