package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/botsdv/backend/internal/config"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger := New(config.Config{Env: "prod", LogLevel: "warn", LogFile: path, LogMaxSizeMB: 1})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "dropped") || !strings.Contains(out, `"service":"botsdv-backend"`) {
		t.Fatalf("unexpected log file contents: %s", out)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New(config.Config{Env: "prod", LogLevel: "loud"})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}
