// Package logging configures the process-wide slog logger. Output goes
// to stderr so stdout stays clean for command output and the MCP stdio
// transport.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs a text handler at the given verbosity as the slog
// default and returns the logger.
func Setup(verbose bool) *slog.Logger {
	return SetupWithWriter(os.Stderr, verbose)
}

// SetupWithWriter is Setup with an explicit sink. Useful for tests.
func SetupWithWriter(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
