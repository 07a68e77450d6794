package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/workspace"
)

const (
	serverName    = "coderunner"
	serverVersion = "1.0.0"
)

// ProjectReader is the read-only workspace surface exposed to agents.
type ProjectReader interface {
	Tree(projectID string) ([]workspace.FileNode, error)
	ReadFile(projectID, relPath string) (string, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	executor   sandbox.Executor
	store      ProjectReader
	languages  []string
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor sandbox.Executor, store ProjectReader) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		executor:  executor,
		store:     store,
		languages: sandbox.NewCommandResolverFromConfig(cfg).Languages(),
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("server.api_port", cfg.Server.APIPort),
		zap.String("runner.backend", cfg.Runner.Backend),
		zap.String("runner.image", cfg.Runner.Image),
		zap.Int("runner.memory_mb", cfg.Runner.MemoryMB),
		zap.Int("runner.cpu_count", cfg.Runner.CPUCount),
		zap.Int("runner.collect_timeout_sec", cfg.Runner.CollectTimeoutSec),
		zap.Bool("runner.network_enabled", cfg.Runner.NetworkEnabled),
		zap.String("workspace.root", cfg.Workspace.Root),
		zap.Strings("languages", s.languages),
	)

	s.mcpServer = server.NewMCPServer(serverName, serverVersion)
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)

	s.registerExecuteProjectFileTool()
	s.registerListProjectFilesTool()
	s.registerReadProjectFileTool()

	return s, nil
}

// registerExecuteProjectFileTool registers the execute_project_file tool
func (s *MCPServer) registerExecuteProjectFileTool() {
	tool := mcp.Tool{
		Name:        "execute_project_file",
		Description: "Compile and run a file of a workspace project in a fresh container and return its combined output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"projectId": map[string]any{
					"type":        "string",
					"description": "Workspace project id",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Entry file, relative to the project root",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Project language",
					"enum":        s.languages,
				},
			},
			Required: []string{"projectId", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteProjectFile)
}

// registerListProjectFilesTool registers the list_project_files tool
func (s *MCPServer) registerListProjectFilesTool() {
	tool := mcp.Tool{
		Name:        "list_project_files",
		Description: "List the files and directories of a workspace project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"projectId": map[string]any{
					"type":        "string",
					"description": "Workspace project id",
				},
			},
			Required: []string{"projectId"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListProjectFiles)
}

// registerReadProjectFileTool registers the read_project_file tool
func (s *MCPServer) registerReadProjectFileTool() {
	tool := mcp.Tool{
		Name:        "read_project_file",
		Description: "Read a text file of a workspace project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"projectId": map[string]any{
					"type":        "string",
					"description": "Workspace project id",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "File path, relative to the project root",
				},
			},
			Required: []string{"projectId", "path"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleReadProjectFile)
}

// handleExecuteProjectFile handles the execute_project_file tool
func (s *MCPServer) handleExecuteProjectFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("projectId")
	if err != nil {
		return nil, fmt.Errorf("projectId parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	path := request.GetString("path", "")

	s.logger.Info("project execution requested",
		zap.String("project_id", projectID),
		zap.String("path", path),
		zap.String("language", language))

	result := s.executor.Execute(ctx, sandbox.ExecutionRequest{
		ProjectID: projectID,
		EntryPath: path,
		Language:  language,
	})

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
		IsError: !result.Succeeded(),
	}, nil
}

// handleListProjectFiles handles the list_project_files tool
func (s *MCPServer) handleListProjectFiles(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("projectId")
	if err != nil {
		return nil, fmt.Errorf("projectId parameter is required: %w", err)
	}

	tree, err := s.store.Tree(projectID)
	if err != nil {
		return errorResult(err), nil
	}

	body, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file tree: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
	}, nil
}

// handleReadProjectFile handles the read_project_file tool
func (s *MCPServer) handleReadProjectFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("projectId")
	if err != nil {
		return nil, fmt.Errorf("projectId parameter is required: %w", err)
	}

	path, err := request.RequireString("path")
	if err != nil {
		return nil, fmt.Errorf("path parameter is required: %w", err)
	}

	content, err := s.store.ReadFile(projectID, path)
	if err != nil {
		return errorResult(err), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: content,
			},
		},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: err.Error(),
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP and blocks until it stops.
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	err := s.httpServer.Start(fmt.Sprintf(":%d", port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP transport.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
