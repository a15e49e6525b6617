// Package observability provides structured logging for the engine.
package observability

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide component-scoped loggers.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// Init replaces the global logger with one at the given level. Development
// runs use a text handler for readability.
func Init(level slog.Level, env string) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// Component returns a logger tagged with the owning component's name.
func Component(name string) *slog.Logger {
	return GlobalLogger.With(slog.String("component", name))
}
