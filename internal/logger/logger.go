// Package logger configures process-wide logging and crash capture for ikoma.
package logger

import (
	"log/slog"
	"os"
)

// Setup installs the default slog handler. Verbose enables debug output.
func Setup(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
