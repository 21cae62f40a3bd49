package util

import (
	"log/slog"
	"os"
)

type Logger = *slog.Logger

func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewQuietLogger returns a logger that only reports warnings and errors.
// The client CLI uses it so event JSON on stdout stays machine-readable.
func NewQuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
