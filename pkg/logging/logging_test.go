package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}

	for _, test := range tests {
		if got := ParseLevel(test.name); got != test.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", test.name, got, test.expected)
		}
	}
}

func TestInit_WritesStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Info("TestSubsystem", "hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, "hello world") {
		t.Errorf("expected output to contain message, got: %s", out)
	}
	if !strings.Contains(out, "subsystem=TestSubsystem") {
		t.Errorf("expected output to contain subsystem attribute, got: %s", out)
	}
}

func TestInit_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Info("TestSubsystem", "should be suppressed")
	Debug("TestSubsystem", "should also be suppressed")

	if buf.Len() != 0 {
		t.Errorf("expected no output below Warn level, got: %s", buf.String())
	}

	Warn("TestSubsystem", "visible warning")
	if !strings.Contains(buf.String(), "visible warning") {
		t.Errorf("expected warning to be logged, got: %s", buf.String())
	}
}

func TestError_IncludesErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Error("TestSubsystem", errors.New("boom"), "operation failed")

	out := buf.String()
	if !strings.Contains(out, "operation failed") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("expected error attribute in output, got: %s", out)
	}
}
