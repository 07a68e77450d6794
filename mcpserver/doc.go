// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the project runner to agents through the
// mark3labs/mcp-go library. It registers three tools:
//
//   - execute_project_file runs a project file in a fresh container and
//     returns {"output": ..., "error": ...}
//   - list_project_files returns the project's file tree
//   - read_project_file returns the content of one project file
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, executor, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
