// pkg/logging/logging.go
// Package logging provides the server's structured logger.
package logging

import (
	"io"
	"log/slog"
)

// New builds a structured logger writing text-formatted records to w, at
// or above level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Conn returns a logger carrying a connection identifier on every record
// it emits, so a server with many concurrent sessions can be followed
// per-connection in its logs.
func Conn(base *slog.Logger, connID string) *slog.Logger {
	return base.With("conn", connID)
}
