package utils

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Not parallel: every case replaces the default logger.
func TestConfigureDefaultLoggerLevels(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"error", slog.LevelError, slog.LevelWarn},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			f, err := ConfigureDefaultLogger(tt.level, "", slog.HandlerOptions{})
			if err != nil {
				t.Fatalf("ConfigureDefaultLogger(%q) error = %v", tt.level, err)
			}
			if f != nil {
				t.Errorf("expected no file handle when logging to stderr")
			}
			ctx := context.Background()
			if !slog.Default().Enabled(ctx, tt.enabled) {
				t.Errorf("level %v should be enabled", tt.enabled)
			}
			if slog.Default().Enabled(ctx, tt.muted) {
				t.Errorf("level %v should be muted", tt.muted)
			}
		})
	}
}

func TestConfigureDefaultLoggerNone(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	f, err := ConfigureDefaultLogger("none", "ignored.log", slog.HandlerOptions{})
	if err != nil || f != nil {
		t.Fatalf("ConfigureDefaultLogger(none) = %v, %v", f, err)
	}
}

func TestConfigureDefaultLoggerBadLevel(t *testing.T) {
	_, err := ConfigureDefaultLogger("loud", "", slog.HandlerOptions{})
	if !errors.Is(err, ErrLogLevel) {
		t.Errorf("expected ErrLogLevel, got %v", err)
	}
}

func TestConfigureDefaultLoggerFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	path := filepath.Join(t.TempDir(), "pdplay.log")
	f, err := ConfigureDefaultLogger("info", path, slog.HandlerOptions{})
	if err != nil {
		t.Fatalf("ConfigureDefaultLogger error = %v", err)
	}
	if f == nil {
		t.Fatal("expected a file handle")
	}

	slog.Info("patch opened", "id", 1003)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(contents), `"msg":"patch opened"`) {
		t.Errorf("log file missing JSON record: %s", contents)
	}
}

func TestConfigureDefaultLoggerMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "pdplay.log")
	_, err := ConfigureDefaultLogger("info", path, slog.HandlerOptions{})
	if !errors.Is(err, ErrLogFile) {
		t.Errorf("expected ErrLogFile, got %v", err)
	}
}
