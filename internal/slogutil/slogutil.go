// Package slogutil builds the file-backed loggers used by long-running
// modes. The CLI keeps stdout for its own output, so logs go to a file under
// the data dir instead.
package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileLogger opens an appending JSON logger at path, creating parent
// directories as needed. The returned closer owns the underlying file.
func FileLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler), f, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
