// Package logging sets up the process logger and bridges harness events onto
// it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"wsoak/internal/events"
)

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to w at level and installs it as the
// slog default.
func New(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// ConsoleSink writes drained harness events to a slog logger, keeping the
// time each event was published.
type ConsoleSink struct {
	Logger *slog.Logger
}

func (c ConsoleSink) HandleLog(e events.Event) {
	level, attrs := slogLevel(e.Level)
	ctx := context.Background()
	h := c.Logger.Handler()
	if !h.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(e.Time, level, e.Message, 0)
	r.AddAttrs(slog.Uint64("seq", e.Seq))
	r.AddAttrs(attrs...)
	_ = h.Handle(ctx, r)
}

func slogLevel(l events.Level) (slog.Level, []slog.Attr) {
	switch l {
	case events.LevelSuccess:
		return slog.LevelInfo, []slog.Attr{slog.String("status", "ok")}
	case events.LevelWarning:
		return slog.LevelWarn, nil
	case events.LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, nil
	}
}
