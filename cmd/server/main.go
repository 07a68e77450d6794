package main

import (
	"context"
	"io"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/httpapi"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/metrics"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/workspace"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			metrics.New,

			// Project storage, shared by the REST API, MCP tools and the executor
			workspace.NewFromConfig,
			func(s *workspace.Store) sandbox.WorkspaceResolver { return s },
			func(s *workspace.Store) httpapi.ProjectStore { return s },
			func(s *workspace.Store) mcpserver.ProjectReader { return s },

			// Container runtime and executor based on config
			sandbox.NewRuntime,
			fx.Annotate(sandbox.NewExecutor, fx.As(new(sandbox.Executor))),

			httpapi.New,
			mcpserver.New,
		),

		fx.Invoke(dumpConfig),
		fx.Invoke(registerRuntime),
		fx.Invoke(registerAPI),
		fx.Invoke(registerMCP),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

func dumpConfig(cfg *config.Config, log *zap.Logger) {
	data, err := cfg.Dump()
	if err != nil {
		log.Warn("failed to dump configuration", zap.Error(err))
		return
	}
	log.Debug("effective configuration", zap.ByteString("config", data))
}

// registerRuntime releases the runtime connection on shutdown.
func registerRuntime(lc fx.Lifecycle, runtime sandbox.RuntimeClient) {
	closer, ok := runtime.(io.Closer)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closer.Close()
		},
	})
}

func registerAPI(lc fx.Lifecycle, server *httpapi.Server) {
	lc.Append(fx.Hook{
		OnStart: server.Start,
		OnStop:  server.Stop,
	})
}

// registerMCP starts the MCP transport selected by server.transport. A stdio
// session ending shuts the whole application down.
func registerMCP(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, server *mcpserver.MCPServer, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			switch cfg.Server.Transport {
			case "stdio":
				go func() {
					if err := server.ServeStdio(); err != nil {
						log.Error("MCP stdio server stopped", zap.Error(err))
					}
					_ = sd.Shutdown()
				}()
			case "http":
				go func() {
					if err := server.ServeHTTP(); err != nil {
						log.Error("MCP HTTP server stopped", zap.Error(err))
						_ = sd.Shutdown(fx.ExitCode(1))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cfg.Server.Transport != "http" {
				return nil
			}
			return server.Shutdown(ctx)
		},
	})
}
