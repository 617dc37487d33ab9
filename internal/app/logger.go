package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger at the given level name and installs it
// as the slog default. Unknown names fall back to INFO.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
