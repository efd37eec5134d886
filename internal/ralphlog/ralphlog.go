// Package ralphlog configures the process-wide structured logger. ralph
// calls slog directly everywhere; this package only picks the handler once
// at startup.
package ralphlog

import (
	"log/slog"
	"os"
)

// Setup installs a JSON slog handler at level as the process default and
// returns it, so cmd/ralph can log its own startup messages through the
// same handler.
func Setup(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
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
