// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap. Production mode emits JSON with ISO8601 timestamps;
// development mode emits colored console output. Every entry carries a
// service field, and NewFromConfig also tags entries with the container
// backend. Output goes to stderr by default so the MCP stdio transport keeps
// stdout to itself.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("runner started", zap.String("image", "my-ide-runner"))
package logger
