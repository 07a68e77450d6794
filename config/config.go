package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. CODERUNNER_RUNNER_IMAGE.
const EnvPrefix = "CODERUNNER"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server" yaml:"server"`
	Runner    RunnerConfig        `mapstructure:"runner" yaml:"runner"`
	Workspace WorkspaceConfig     `mapstructure:"workspace" yaml:"workspace"`
	Logging   LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Languages map[string]Language `mapstructure:"languages" yaml:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport          string   `mapstructure:"transport" yaml:"transport"`
	HTTPPort           int      `mapstructure:"http_port" yaml:"http_port"`
	APIPort            int      `mapstructure:"api_port" yaml:"api_port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// RunnerConfig holds the container execution policy
type RunnerConfig struct {
	Backend             string `mapstructure:"backend" yaml:"backend"`
	Image               string `mapstructure:"image" yaml:"image"`
	MountPath           string `mapstructure:"mount_path" yaml:"mount_path"`
	MemoryMB            int    `mapstructure:"memory_mb" yaml:"memory_mb"`
	CPUCount            int    `mapstructure:"cpu_count" yaml:"cpu_count"`
	CollectTimeoutSec   int    `mapstructure:"collect_timeout_sec" yaml:"collect_timeout_sec"`
	DaemonTimeoutSec    int    `mapstructure:"daemon_timeout_sec" yaml:"daemon_timeout_sec"`
	RemoveTimeoutSec    int    `mapstructure:"remove_timeout_sec" yaml:"remove_timeout_sec"`
	MaxOutputKB         int    `mapstructure:"max_output_kb" yaml:"max_output_kb"`
	NetworkEnabled      bool   `mapstructure:"network_enabled" yaml:"network_enabled"`
	SerializePerProject bool   `mapstructure:"serialize_per_project" yaml:"serialize_per_project"`
	PodmanBinary        string `mapstructure:"podman_binary" yaml:"podman_binary"`
}

// WorkspaceConfig holds the on-disk project store settings
type WorkspaceConfig struct {
	Root            string   `mapstructure:"root" yaml:"root"`
	ArchiveExcludes []string `mapstructure:"archive_excludes" yaml:"archive_excludes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode    string `mapstructure:"mode" yaml:"mode"`
	Level   string `mapstructure:"level" yaml:"level"`
	Service string `mapstructure:"service" yaml:"service"`
	// OutputPaths are zap sink URLs. Keep them off stdout when the MCP
	// transport is stdio.
	OutputPaths []string `mapstructure:"output_paths" yaml:"output_paths"`
}

// Language overrides or adds a language command policy. Command may use the
// {entry} and {source_root} placeholders; a command that does is treated as
// taking the entry path even when UsesEntry is unset.
type Language struct {
	Command   string `mapstructure:"command" yaml:"command"`
	UsesEntry bool   `mapstructure:"uses_entry" yaml:"uses_entry"`
}

// New loads and validates the application configuration from ./config.yaml
// or ./config/config.yaml, falling back to defaults.
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return decode(v)
}

// NewFromFile loads the configuration from an explicit file path.
func NewFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "http")
	v.SetDefault("server.http_port", 8081)
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	v.SetDefault("runner.backend", "docker")
	v.SetDefault("runner.image", "my-ide-runner")
	v.SetDefault("runner.mount_path", "/app")
	v.SetDefault("runner.memory_mb", 512)
	v.SetDefault("runner.cpu_count", 1)
	v.SetDefault("runner.collect_timeout_sec", 10)
	v.SetDefault("runner.daemon_timeout_sec", 30)
	v.SetDefault("runner.remove_timeout_sec", 10)
	v.SetDefault("runner.max_output_kb", 1024)
	v.SetDefault("runner.network_enabled", false)
	v.SetDefault("runner.serialize_per_project", false)
	v.SetDefault("runner.podman_binary", "podman")

	v.SetDefault("workspace.root", "./user-workspaces")
	v.SetDefault("workspace.archive_excludes", []string{"*.class", "bin/", "obj/", "node_modules/", "__pycache__/"})

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.service", "coderunner")
	v.SetDefault("logging.output_paths", []string{"stderr"})
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.APIPort <= 0 {
		return fmt.Errorf("server.api_port must be positive, got: %d", c.Server.APIPort)
	}

	if c.Server.Transport == "http" && c.Server.HTTPPort == c.Server.APIPort {
		return fmt.Errorf("server.http_port and server.api_port must differ, both are %d", c.Server.APIPort)
	}

	switch c.Runner.Backend {
	case "docker", "podman":
	default:
		return fmt.Errorf("unsupported runner.backend: %s", c.Runner.Backend)
	}

	if c.Runner.Image == "" {
		return fmt.Errorf("runner.image must not be empty")
	}

	if !strings.HasPrefix(c.Runner.MountPath, "/") {
		return fmt.Errorf("runner.mount_path must be absolute, got: %q", c.Runner.MountPath)
	}

	if c.Runner.MemoryMB <= 0 {
		return fmt.Errorf("runner.memory_mb must be positive, got: %d", c.Runner.MemoryMB)
	}

	if c.Runner.CPUCount <= 0 {
		return fmt.Errorf("runner.cpu_count must be positive, got: %d", c.Runner.CPUCount)
	}

	if c.Runner.CollectTimeoutSec <= 0 {
		return fmt.Errorf("runner.collect_timeout_sec must be positive, got: %d", c.Runner.CollectTimeoutSec)
	}

	if c.Runner.DaemonTimeoutSec <= 0 {
		return fmt.Errorf("runner.daemon_timeout_sec must be positive, got: %d", c.Runner.DaemonTimeoutSec)
	}

	if c.Runner.RemoveTimeoutSec <= 0 {
		return fmt.Errorf("runner.remove_timeout_sec must be positive, got: %d", c.Runner.RemoveTimeoutSec)
	}

	if c.Runner.MaxOutputKB <= 0 {
		return fmt.Errorf("runner.max_output_kb must be positive, got: %d", c.Runner.MaxOutputKB)
	}

	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Server.Transport == "stdio" {
		for _, out := range c.Logging.OutputPaths {
			if out == "stdout" {
				return fmt.Errorf("logging.output_paths must not include stdout with the stdio transport")
			}
		}
	}

	for name, lang := range c.Languages {
		if strings.TrimSpace(lang.Command) == "" {
			return fmt.Errorf("languages.%s.command must not be empty", name)
		}
	}

	return nil
}

// CollectTimeout returns the log collection deadline as a duration
func (c *Config) CollectTimeout() time.Duration {
	return time.Duration(c.Runner.CollectTimeoutSec) * time.Second
}

// DaemonTimeout returns the per-call timeout for runtime daemon requests
func (c *Config) DaemonTimeout() time.Duration {
	return time.Duration(c.Runner.DaemonTimeoutSec) * time.Second
}

// RemoveTimeout returns the timeout for container removal
func (c *Config) RemoveTimeout() time.Duration {
	return time.Duration(c.Runner.RemoveTimeoutSec) * time.Second
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
