package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Setup configures the global slog logger.
// levelStr: "debug", "info", "warn", "error"
// logPath: log file path (console only when empty)
func Setup(levelStr string, logPath string) error {
	return SetupWriter(os.Stdout, levelStr, logPath)
}

// SetupWriter is Setup with an explicit console writer.
func SetupWriter(console io.Writer, levelStr string, logPath string) error {
	// 1. level
	level := ParseLevel(levelStr)

	// 2. output
	writer := console
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return err
		}

		// append mode
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}

		writer = io.MultiWriter(console, file)
	}

	// 3. handler; file:line only at debug
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// 4. set as default
	slog.SetDefault(slog.New(slog.NewTextHandler(writer, opts)))
	return nil
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// With returns the default logger tagged with a component name.
func With(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
