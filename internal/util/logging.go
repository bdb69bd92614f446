package util

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	once       sync.Once
	baseLogger *slog.Logger
)

// LogConfig configures the process-wide structured logger.
type LogConfig struct {
	Level     string // DEBUG, INFO, WARN, ERROR
	Format    string // json, text
	AddSource bool
}

// InitLogging initializes the global logger. Safe to call multiple times;
// only the first call takes effect.
func InitLogging(cfg LogConfig) {
	once.Do(func() {
		var level slog.Level
		switch cfg.Level {
		case "DEBUG":
			level = slog.LevelDebug
		case "WARN":
			level = slog.LevelWarn
		case "ERROR":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

		var handler slog.Handler
		if cfg.Format == "text" {
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}

		baseLogger = slog.New(handler)
		slog.SetDefault(baseLogger)
	})
}

// Logger returns the global logger, initializing it with defaults if
// InitLogging was never called.
func Logger() *slog.Logger {
	if baseLogger == nil {
		InitLogging(LogConfig{Level: "INFO", Format: "json"})
	}
	return baseLogger
}

type ctxKey int

const operationIDKey ctxKey = iota

// WithOperationID attaches an operation id to ctx, for correlating log
// lines emitted by the Locker and Executor that service the same
// in-flight operation (the Lock Manager itself does not log).
func WithOperationID(ctx context.Context, opID uint64) context.Context {
	return context.WithValue(ctx, operationIDKey, opID)
}

// LoggerFor returns a logger annotated with the operation id carried by
// ctx, if any.
func LoggerFor(ctx context.Context) *slog.Logger {
	l := Logger()
	if opID, ok := ctx.Value(operationIDKey).(uint64); ok {
		return l.With("op_id", opID)
	}
	return l
}
