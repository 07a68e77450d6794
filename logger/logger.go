package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/coderunner/config"
)

// DefaultService is the service field used when none is configured.
const DefaultService = "coderunner"

type options struct {
	service     string
	outputPaths []string
	fields      []zap.Field
}

// Option customizes a logger built by New.
type Option func(*options)

// WithService sets the service field attached to every entry. Empty keeps
// DefaultService.
func WithService(name string) Option {
	return func(o *options) {
		if name != "" {
			o.service = name
		}
	}
}

// WithOutputPaths sends entries and internal errors to the given zap sinks.
func WithOutputPaths(paths ...string) Option {
	return func(o *options) {
		if len(paths) > 0 {
			o.outputPaths = paths
		}
	}
}

// WithFields attaches constant fields to every entry.
func WithFields(fields ...zap.Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// NewFromConfig builds the application logger from the logging section. Every
// entry carries the service name and the container backend in use.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	opts := []Option{
		WithService(cfg.Logging.Service),
		WithOutputPaths(cfg.Logging.OutputPaths...),
	}
	if cfg.Runner.Backend != "" {
		opts = append(opts, WithFields(zap.String("backend", cfg.Runner.Backend)))
	}
	return New(cfg.Logging.Mode, cfg.Logging.Level, opts...)
}

// New creates a new logger instance based on configuration
func New(mode, level string, opts ...Option) (*zap.Logger, error) {
	o := &options{service: DefaultService}
	for _, opt := range opts {
		opt(o)
	}

	var cfg zap.Config

	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	if o.outputPaths != nil {
		cfg.OutputPaths = o.outputPaths
		cfg.ErrorOutputPaths = o.outputPaths
	}

	fields := append([]zap.Field{zap.String("service", o.service)}, o.fields...)
	return cfg.Build(zap.Fields(fields...))
}
