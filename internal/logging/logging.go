package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process-wide text logger on stderr and installs it as
// the slog default so library code logging through the package-level
// functions lands in the same stream. Level is matched case-insensitively;
// anything unrecognized falls back to info rather than failing startup.
func Setup(level string) *slog.Logger {
	lvl := parseLevel(level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
