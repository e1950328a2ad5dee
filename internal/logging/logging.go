// Package logging configures the process-wide slog.Logger from a
// config.LoggingConfig, choosing a JSON or text handler and attaching the
// static attribute every log line in dnsden carries (pid).
// Per-query correlation uses a request_id attribute attached by callers
// (see internal/worker), not anything in this package.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config mirrors config.LoggingConfig so this package has no import
// dependency on internal/config.
type Config struct {
	Level      string
	Structured bool
	Format     string // "json" or "text"
}

// Configure builds the process slog.Logger and installs it as the
// package-level default.
func Configure(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)
	out := io.Writer(os.Stderr)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Structured && strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{slog.Int("pid", os.Getpid())})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
