// Package logging wires up the process-wide slog logger. Modeled on
// ehrlich-b-wingthing's internal/logger package: a text handler over a
// multi-writer (stdout plus an optional file), level selected by name.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init builds and installs the default logger at the given level
// ("debug", "info", "warn", "error"); if logFile is non-empty, log
// lines are also appended there.
func Init(level, logFile string) (*slog.Logger, error) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
