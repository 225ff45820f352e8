package disttree

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with disttree-specific context.
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

// WithRank adds a rank field to the logger.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// LogInit logs a shard load.
func (l *Logger) LogInit(ctx context.Context, entries, groupSize int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "init failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "shard loaded",
			"entries", entries,
			"group_size", groupSize,
		)
	}
}

// LogIndex logs a full IndexData run.
func (l *Logger) LogIndex(ctx context.Context, entries int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index completed",
			"entries", entries,
			"duration", duration,
		)
	}
}

// LogPhase logs one completed protocol phase.
func (l *Logger) LogPhase(ctx context.Context, phase string, duration time.Duration) {
	l.DebugContext(ctx, "phase completed",
		"phase", phase,
		"duration", duration,
	)
}

// LogMigration logs the point exchange of a rebalancing round.
func (l *Logger) LogMigration(ctx context.Context, sent, received, kept int) {
	l.DebugContext(ctx, "migration completed",
		"points_sent", sent,
		"points_received", received,
		"points_kept", kept,
	)
}
