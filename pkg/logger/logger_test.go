package logger

import (
	"log/slog"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithFileOutput(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "monitor.log")

	log := New(Config{Level: "debug", Output: logPath, Format: "json"})
	log.Info("hello", "key", "value")

	if log == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNoopDoesNotPanic(t *testing.T) {
	log := Noop()
	log.Debug("a")
	log.Info("b", "k", 1)
	log.Warn("c")
	log.Error("d", "error", "boom")
	log.With("component", "test").Info("e")
}
