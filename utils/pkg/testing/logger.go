package envtesting

import (
	"log/slog"
	"os"

	"github.com/malbeclabs/envelope/utils/pkg/logger"
)

// NewLogger returns the service logger for tests, writing to stderr. Output is
// limited to errors unless DEBUG is set: DEBUG=1 adds info, DEBUG=2 adds debug.
// DEBUG_FORMAT=json switches to JSON lines.
func NewLogger() *slog.Logger {
	return logger.NewWithOptions(logger.Options{
		Level:  levelFromEnv(os.Getenv("DEBUG")),
		Format: os.Getenv("DEBUG_FORMAT"),
		Writer: os.Stderr,
	})
}

func levelFromEnv(v string) slog.Level {
	switch v {
	case "2":
		return slog.LevelDebug
	case "1":
		return slog.LevelInfo
	default:
		return slog.LevelError
	}
}
