package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"doppel/internal/infra/config"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := levelFor(tc.in); got != tc.want {
			t.Errorf("levelFor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewJSONFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doppel.log")
	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("turn complete", "session", "s1", "tokens", 42)
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line not JSON: %v (line %q)", err, data)
	}
	if entry["msg"] != "turn complete" || entry["session"] != "s1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doppel.log")
	log, closer, err := New(config.LoggerConfig{Level: "warn", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Debug("llm response")
	log.Warn("iteration budget exhausted")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "llm response") {
		t.Error("debug message logged at warn level")
	}
	if !strings.Contains(out, "iteration budget exhausted") {
		t.Error("warn message missing")
	}
}

func TestNewStandardStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		log, closer, err := New(config.LoggerConfig{Format: "text", Output: output})
		if err != nil {
			t.Fatalf("New(%q): %v", output, err)
		}
		if log == nil {
			t.Fatalf("New(%q): nil logger", output)
		}
		if err := closer(); err != nil {
			t.Errorf("closer(%q): %v", output, err)
		}
	}
}

func TestNewBadPath(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Output: "/nonexistent/dir/doppel.log"})
	if err == nil {
		t.Error("expected error for unwritable path")
	}
}
