package ops

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/roostlabs/roost/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogConnection logs a push-channel connection transition
func (l *Logger) LogConnection(state string, attempt int, err error) {
	if err != nil {
		l.Warn("push channel connect failed",
			"state", state,
			"attempt", attempt,
			"error", err)
	} else {
		l.Info("push channel state changed",
			"state", state,
			"attempt", attempt)
	}
}

// LogReconnectScheduled logs a scheduled reconnect attempt
func (l *Logger) LogReconnectScheduled(attempt int, delay time.Duration) {
	l.Debug("push channel reconnect scheduled",
		"attempt", attempt,
		"delay_ms", delay.Milliseconds())
}

// LogPageFetch logs a feed page fetch
func (l *Logger) LogPageFetch(feed string, count int, hasMore bool, duration time.Duration, err error) {
	if err != nil {
		l.Error("feed page fetch failed",
			"feed", feed,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("feed page fetched",
			"feed", feed,
			"posts", count,
			"has_more", hasMore,
			"duration_ms", duration.Milliseconds())
	}
}

// LogMutation logs the outcome of an optimistic mutation
func (l *Logger) LogMutation(action string, target string, rolledBack bool, err error) {
	if err != nil {
		l.Warn("mutation failed",
			"action", action,
			"target", target,
			"rolled_back", rolledBack,
			"error", err)
	} else {
		l.Debug("mutation settled",
			"action", action,
			"target", target)
	}
}

// LogEventDropped logs a push event that was not processed
func (l *Logger) LogEventDropped(event string, reason string) {
	l.Debug("push event dropped",
		"event", event,
		"reason", reason)
}

// Default logger configuration
var defaultLogger *Logger

func init() {
	// Create a default logger for early startup
	defaultLogger = NewLogger(&config.Logging{
		Level:  "info",
		Format: "text",
	})
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}
