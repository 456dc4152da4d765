package utils

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*StructuredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewStructuredLoggerFromZap(zap.New(core)), logs
}

func TestNewStructuredLogger(t *testing.T) {
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:       DEBUG,
		Format:      FormatJSON,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if logger.GetLevel() != DEBUG {
		t.Errorf("Expected DEBUG level, got %v", logger.GetLevel())
	}

	logger.SetLevel(WARN)
	if logger.GetLevel() != WARN {
		t.Errorf("Expected WARN level, got %v", logger.GetLevel())
	}

	if err := logger.Sync(); err != nil {
		t.Errorf("Sync on stderr should not fail: %v", err)
	}
}

func TestLogWritesCategoryAndMetadata(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Log("disk write failed", ERROR, "disk", map[string]any{
		"key":   "a/b",
		"error": errors.New("no space"),
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.ErrorLevel {
		t.Errorf("level = %v, want error", e.Level)
	}
	fields := e.ContextMap()
	if fields["category"] != "disk" {
		t.Errorf("category = %v, want disk", fields["category"])
	}
	if fields["key"] != "a/b" {
		t.Errorf("key = %v, want a/b", fields["key"])
	}
	if fields["error"] != "no space" {
		t.Errorf("error = %v, want no space", fields["error"])
	}
}

func TestLogRespectsLevel(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)

	logger.Debug("hidden", nil)
	logger.Log("also hidden", DEBUG, "cache", nil)
	logger.Info("shown", nil)
	logger.Warn("shown too", map[string]any{"n": 1})

	if logs.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", logs.Len())
	}
}

func TestWithComponentAndFields(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	child := logger.WithComponent("preheat").WithFields(map[string]any{"run": "abc"})
	child.Info("started", nil)

	e := logs.All()[0]
	if e.LoggerName != "preheat" {
		t.Errorf("logger name = %q, want preheat", e.LoggerName)
	}
	if e.ContextMap()["run"] != "abc" {
		t.Errorf("run field missing: %v", e.ContextMap())
	}
}

func TestParseLogFormat(t *testing.T) {
	if f, err := ParseLogFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseLogFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseLogFormat("console"); err != nil || f != FormatText {
		t.Errorf("ParseLogFormat(console) = %v, %v", f, err)
	}
	if _, err := ParseLogFormat("xml"); err == nil {
		t.Error("ParseLogFormat(xml) should fail")
	}
}
