package slogutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "watch.log")
	logger, closer, err := FileLogger(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("FileLogger: %v", err)
	}
	logger.Info("index updated", "path", "internal/auth/session.go")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"index updated"`) {
		t.Fatalf("log missing message: %s", data)
	}
	if !strings.Contains(string(data), `"path":"internal/auth/session.go"`) {
		t.Fatalf("log missing attr: %s", data)
	}
}

func TestFileLoggerRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.log")
	logger, closer, err := FileLogger(path, slog.LevelWarn)
	if err != nil {
		t.Fatalf("FileLogger: %v", err)
	}
	logger.Debug("noisy detail")
	logger.Warn("embedding backlog growing")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "noisy detail") {
		t.Fatalf("debug record should be filtered: %s", data)
	}
	if !strings.Contains(string(data), "embedding backlog growing") {
		t.Fatalf("warn record missing: %s", data)
	}
}
