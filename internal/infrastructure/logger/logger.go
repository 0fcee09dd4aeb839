package logger

import (
	"log/slog"
	"os"
	"strings"
)

// serviceName is stamped on every infrastructure log line so gateway and
// worker output can be told apart when aggregated.
const serviceName = "promptdial"

// Setup creates the infrastructure logger. Application-side pipeline code
// logs through zerolog; this slog instance covers the gateway, the
// websocket hub, and startup wiring. format is "json" (default) or "text".
func Setup(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)

	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Named returns a child logger tagged with the component emitting it.
func Named(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithTrace returns a child logger carrying the optimization trace ID so
// infrastructure lines correlate with pipeline telemetry.
func WithTrace(logger *slog.Logger, traceID string) *slog.Logger {
	return logger.With("trace_id", traceID)
}
