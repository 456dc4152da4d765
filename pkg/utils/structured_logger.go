package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// ParseLogFormat parses "text"/"console" or "json".
func ParseLogFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "console":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid log format: %s", s)
	}
}

// StructuredLoggerConfig holds configuration for the logger
type StructuredLoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	// OutputPaths are zap sink URLs; defaults to stderr.
	OutputPaths   []string
	IncludeCaller bool
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:         INFO,
		Format:        FormatText,
		OutputPaths:   []string{"stderr"},
		IncludeCaller: true,
	}
}

// StructuredLogger is a leveled, field-carrying logger backed by zap.
type StructuredLogger struct {
	zl       *zap.Logger
	level    zap.AtomicLevel
	stdSinks bool
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config *StructuredLoggerConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}

	level := zap.NewAtomicLevelAt(toZapLevel(config.Level))

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Sampling = nil
	zc.DisableCaller = !config.IncludeCaller
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.Format == FormatText {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if len(config.OutputPaths) > 0 {
		zc.OutputPaths = config.OutputPaths
	}

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	stdSinks := true
	for _, p := range zc.OutputPaths {
		if p != "stderr" && p != "stdout" {
			stdSinks = false
		}
	}

	return &StructuredLogger{zl: zl, level: level, stdSinks: stdSinks}, nil
}

// NewStructuredLoggerFromZap wraps an existing zap logger.
func NewStructuredLoggerFromZap(zl *zap.Logger) *StructuredLogger {
	return &StructuredLogger{zl: zl, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StructuredLogger {
	return NewStructuredLoggerFromZap(zap.NewNop())
}

// WithField returns a new logger with an additional context field
func (sl *StructuredLogger) WithField(key string, value any) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.With(zap.Any(key, value)), level: sl.level, stdSinks: sl.stdSinks}
}

// WithFields returns a new logger with multiple context fields
func (sl *StructuredLogger) WithFields(fields map[string]any) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.With(toZapFields(fields)...), level: sl.level, stdSinks: sl.stdSinks}
}

// WithComponent returns a logger with a component field
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{zl: sl.zl.Named(component), level: sl.level, stdSinks: sl.stdSinks}
}

// SetLevel sets the log level
func (sl *StructuredLogger) SetLevel(level LogLevel) {
	sl.level.SetLevel(toZapLevel(level))
}

// GetLevel returns the current log level
func (sl *StructuredLogger) GetLevel() LogLevel {
	return fromZapLevel(sl.level.Level())
}

func (sl *StructuredLogger) Debug(message string, fields map[string]any) {
	sl.zl.Debug(message, toZapFields(fields)...)
}

func (sl *StructuredLogger) Info(message string, fields map[string]any) {
	sl.zl.Info(message, toZapFields(fields)...)
}

func (sl *StructuredLogger) Warn(message string, fields map[string]any) {
	sl.zl.Warn(message, toZapFields(fields)...)
}

func (sl *StructuredLogger) Error(message string, fields map[string]any) {
	sl.zl.Error(message, toZapFields(fields)...)
}

// Log writes one entry tagged with a category. It is the sink the cache
// coordinator logs through.
func (sl *StructuredLogger) Log(message string, level LogLevel, category string, metadata map[string]any) {
	fields := toZapFields(metadata)
	if category != "" {
		fields = append(fields, zap.String("category", category))
	}
	if ce := sl.zl.Check(toZapLevel(level), message); ce != nil {
		ce.Write(fields...)
	}
}

// Zap exposes the underlying zap logger.
func (sl *StructuredLogger) Zap() *zap.Logger {
	return sl.zl
}

// Sync flushes buffered entries. Sync errors from terminal sinks are
// ignored since stderr and stdout reject fsync on most platforms.
func (sl *StructuredLogger) Sync() error {
	err := sl.zl.Sync()
	if err != nil && sl.stdSinks {
		return nil
	}
	return err
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(level zapcore.Level) LogLevel {
	switch {
	case level <= zapcore.DebugLevel:
		return DEBUG
	case level == zapcore.InfoLevel:
		return INFO
	case level == zapcore.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}

func toZapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
