package gradtape

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with gradtape-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPolicy adds the index policy field to the logger.
func (l *Logger) WithPolicy(linear bool) *Logger {
	policy := "reuse"
	if linear {
		policy = "linear"
	}
	return &Logger{
		Logger: l.Logger.With("policy", policy),
	}
}

// LogEvaluate logs a replay pass.
func (l *Logger) LogEvaluate(dir Direction, statements int, duration time.Duration) {
	l.Debug("evaluate completed",
		"direction", dir.String(),
		"statements", statements,
		"duration", duration,
	)
}

// LogErase logs a tape-editing erase operation.
func (l *Logger) LogErase(statements int, duration time.Duration) {
	l.Debug("erase completed",
		"statements", statements,
		"duration", duration,
	)
}

// LogAppend logs a tape-editing append operation.
func (l *Logger) LogAppend(statements int, duration time.Duration) {
	l.Debug("append completed",
		"statements", statements,
		"duration", duration,
	)
}

// LogReset logs a tape reset.
func (l *Logger) LogReset(statements int) {
	l.Debug("tape reset",
		"statements", statements,
	)
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"op", op,
			"bytes", bytes,
		)
	}
}
