// Package logging provides structured logging for hostsweep on top of slog.
// Text and JSON formats are supported, and file output can be rotated.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// RotationConfig controls size-based rotation of file output.
type RotationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb" mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days" mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool `yaml:"compress" json:"compress" mapstructure:"compress"`
}

// Config holds logging configuration.
type Config struct {
	Level     LogLevel       `yaml:"level" json:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    LogFormat      `yaml:"format" json:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
	Output    string         `yaml:"output" json:"output" mapstructure:"output"`
	AddSource bool           `yaml:"add_source" json:"add_source" mapstructure:"add_source"`
	Rotation  RotationConfig `yaml:"rotation" json:"rotation" mapstructure:"rotation"`
}

// DefaultConfig returns a default logging configuration. Logs go to stderr
// so that JSON written to stdout stays machine readable.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: "stderr",
		Rotation: RotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config Config
	closer io.Closer
}

func parseLevel(level LogLevel) slog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(cfg Config) (io.Writer, io.Closer, error) {
	switch cfg.Output {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
		return nil, nil, err
	}

	if cfg.Rotation.Enabled {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
		}
		return rotator, rotator, nil
	}

	file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	writer, closer, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	logger := NewWithWriter(cfg, writer)
	logger.closer = closer
	return logger, nil
}

// NewWithWriter creates a logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return NewWithWriter(DefaultConfig(), os.Stderr)
}

// Close releases the output file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Config returns the configuration the logger was built from.
func (l *Logger) Config() Config {
	return l.config
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
		config: l.config,
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithScanID adds a scan ID field to the logger.
func (l *Logger) WithScanID(scanID string) *Logger {
	return l.WithFields("scan_id", scanID)
}

// WithTarget adds a target field to the logger.
func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

// InfoScan logs scan-related information.
func (l *Logger) InfoScan(msg, target string, fields ...any) {
	allFields := append([]any{"target", target}, fields...)
	l.Info(msg, allFields...)
}

// ErrorScan logs scan-related errors.
func (l *Logger) ErrorScan(msg, target string, err error, fields ...any) {
	allFields := append([]any{"target", target, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// WarnDegraded logs an optional capability falling back.
func (l *Logger) WarnDegraded(capability string, err error) {
	l.Warn("Output capability degraded", "capability", capability, "error", err)
}

// ErrorStorage logs scan history persistence errors.
func (l *Logger) ErrorStorage(msg string, err error, fields ...any) {
	allFields := append([]any{"component", "storage", "error", err}, fields...)
	l.Error(msg, allFields...)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewDefault()
)

// SetDefault sets the default logger instance.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// Default returns the default logger instance.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	Default().Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	Default().Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	Default().Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	Default().Error(msg, fields...)
}

// InfoScan logs scan-related information using the default logger.
func InfoScan(msg, target string, fields ...any) {
	Default().InfoScan(msg, target, fields...)
}

// ErrorScan logs scan-related errors using the default logger.
func ErrorScan(msg, target string, err error, fields ...any) {
	Default().ErrorScan(msg, target, err, fields...)
}

// WarnDegraded logs a degraded capability using the default logger.
func WarnDegraded(capability string, err error) {
	Default().WarnDegraded(capability, err)
}

// ErrorStorage logs storage errors using the default logger.
func ErrorStorage(msg string, err error, fields ...any) {
	Default().ErrorStorage(msg, err, fields...)
}
