// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and CODERUNNER_* environment variables. It
// covers the REST and MCP server settings, the container runner policy
// (image, mount path, resource limits, deadlines), the workspace root, logging,
// and per-language command overrides.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Runner image: %s\n", cfg.Runner.Image)
package config
