package logger

import "context"

// LoggerContext accumulates key/value attributes across the lifetime of an
// operation so related log lines carry consistent context without repeating
// the attribute list at every call site.
type LoggerContext struct {
	logger *Logger
	attrs  []any
}

// NewLoggerContext creates a LoggerContext wrapping the provided logger.
func NewLoggerContext(logger *Logger) *LoggerContext {
	return &LoggerContext{logger: logger}
}

// Add appends key/value pairs to the accumulated attribute set.
func (lc *LoggerContext) Add(args ...any) { lc.attrs = append(lc.attrs, args...) }

// Debug logs at LevelDebug with the accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.logger.Debugc(ctx, 4, msg, append(lc.attrs, args...)...)
}

// Info logs at LevelInfo with the accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.logger.Infoc(ctx, 4, msg, append(lc.attrs, args...)...)
}

// Warn logs at LevelWarn with the accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.logger.Warnc(ctx, 4, msg, append(lc.attrs, args...)...)
}

// Error logs at LevelError with the accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.logger.Errorc(ctx, 4, msg, append(lc.attrs, args...)...)
}
