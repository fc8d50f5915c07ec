package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agenthq/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputStreams(t *testing.T) {
	tests := []struct {
		output string
		want   *os.File
	}{
		{"stdout", os.Stdout},
		{"stderr", os.Stderr},
		{"", os.Stderr},
	}
	for _, tt := range tests {
		w, closer, err := openOutput(tt.output)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", tt.output, err)
		}
		if w != tt.want {
			t.Errorf("openOutput(%q) returned wrong stream", tt.output)
		}
		if err := closer(); err != nil {
			t.Errorf("closer: %v", err)
		}
	}
}

func TestOpenOutputInvalidPath(t *testing.T) {
	_, _, err := openOutput("/nonexistent/dir/log.txt")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestNewJSONFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("agent registered", "agent_id", "secretary_1")
	log.Debug("filtered out")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["msg"] != "agent registered" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "agenthq" {
		t.Errorf("service = %v, want agenthq", entry["service"])
	}
	if entry["agent_id"] != "secretary_1" {
		t.Errorf("agent_id = %v", entry["agent_id"])
	}
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: "/nonexistent/dir/app.log"})
	if err == nil {
		t.Error("expected error for invalid output path")
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	parent := slog.New(slog.NewTextHandler(&buf, nil))
	Component(parent, "registry").Info("hello")
	if !strings.Contains(buf.String(), "component=registry") {
		t.Errorf("output missing component attr: %s", buf.String())
	}
}

func TestComponentNilParent(t *testing.T) {
	if Component(nil, "x") == nil {
		t.Error("Component(nil) should return a usable logger")
	}
}
