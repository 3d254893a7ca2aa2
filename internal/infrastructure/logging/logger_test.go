package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			logger := New(config.LoggingConfig{Level: "info", Format: format, Output: "stderr"}, "1.0.0")
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseLevel(tt.input); result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogger_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")

	logger.With("thermostat", "hall").Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if logEntry["service"] != "graylogic-thermostat" {
		t.Errorf("expected service field, got %v", logEntry["service"])
	}
	if logEntry["version"] != "test" {
		t.Errorf("expected version='test', got %v", logEntry["version"])
	}
	if logEntry["thermostat"] != "hall" {
		t.Errorf("expected thermostat='hall', got %v", logEntry["thermostat"])
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got %v", logEntry["msg"])
	}
}

func TestLogger_DebugSwitch(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "text"}, "test")

	var sw DebugSwitch
	logger := base.WithDebugSwitch(&sw).With("thermostat", "hall")

	logger.Debug("hidden while off")
	if buf.Len() != 0 {
		t.Fatalf("debug output with switch off: %q", buf.String())
	}

	sw.Set(true)
	logger.Debug("visible while on")
	if !strings.Contains(buf.String(), "visible while on") {
		t.Fatalf("expected debug output with switch on, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "thermostat=hall") {
		t.Errorf("expected derived attributes to survive, got %q", buf.String())
	}

	buf.Reset()
	sw.Set(false)
	logger.Debug("hidden again")
	logger.Info("info still passes")
	if strings.Contains(buf.String(), "hidden again") {
		t.Error("debug output after switch turned off")
	}
	if !strings.Contains(buf.String(), "info still passes") {
		t.Error("info output should not depend on the switch")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}
