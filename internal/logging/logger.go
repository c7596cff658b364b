// Package logging provides structured JSON logging utilities.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a new structured JSON logger for the application.
func NewLogger(level slog.Level) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// redactedKeys are attribute keys whose values never reach the log.
var redactedKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"api_token":     true,
	"client_secret": true,
	"authorization": true,
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// WithComponent returns a logger with a component field for categorizing log messages.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}
