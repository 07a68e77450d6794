// Package main is the entry point for the coderunner server.
//
// coderunner backs a browser IDE. It keeps user projects on disk and runs a
// project's entry file inside a fresh, resource-limited container that is
// removed after every run. The REST API serves the IDE; the MCP server exposes
// the same execution to agents over stdio or streamable HTTP.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
