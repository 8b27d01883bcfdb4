// Package logger builds the structured logger shared by the API gateway and
// the settlement worker. Every money movement is logged as JSON with the
// correlation id attached by the caller, so one settlement can be traced
// across the gateway, the saga, the outbox and the payout processor.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/marketplace-settlement/internal/config"
)

// parseLevel maps the configured level string onto slog. Unknown values
// fall back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates the JSON slog.Logger used throughout the service.
// Source locations are only recorded at debug level; in normal operation
// the correlation id is the trace handle, not the call site.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	log := slog.New(handler)

	log.Info("logger initialized", "level", level)
	return log
}
