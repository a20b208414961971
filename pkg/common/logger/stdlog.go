package logger

import (
	"context"
	"log"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// NewStdLogger returns a standard library Logger that wraps the slog Logger.
// This is useful for integrating with APIs (like http.Server) that only
// accept the standard library logger.
func NewStdLogger(logger *Logger, level Level) *log.Logger {
	return slog.NewLogLogger(&stdLogHandler{logger: logger, level: level}, slog.Level(level))
}

type stdLogHandler struct {
	logger *Logger
	level  Level
}

func (h *stdLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.logger.handler.Enabled(ctx, level)
}

func (h *stdLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stdLogHandler{
		logger: &Logger{handler: h.logger.handler.WithAttrs(attrs), traceIDFn: h.logger.traceIDFn},
		level:  h.level,
	}
}

func (h *stdLogHandler) WithGroup(name string) slog.Handler {
	return &stdLogHandler{
		logger: &Logger{handler: h.logger.handler.WithGroup(name), traceIDFn: h.logger.traceIDFn},
		level:  h.level,
	}
}

func (h *stdLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var pcs [1]uintptr
	runtime.Callers(4, pcs[:])

	msg := strings.TrimSuffix(r.Message, "\n")

	nr := slog.NewRecord(time.Now(), r.Level, msg, pcs[0])
	return h.logger.handler.Handle(ctx, nr)
}
