// Package logger configures the process-wide slog logger. All diagnostics go
// to stderr: stdout is reserved for the single JSON document each command
// emits.
package logger

import (
	"io"
	"log/slog"
	"os"
)

type Config struct {
	Level  slog.Level
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Output: os.Stderr,
	}
}

func Init(cfg Config) {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	slog.SetDefault(slog.New(slog.NewTextHandler(cfg.Output, opts)))
}

// ForComponent returns a logger tagged with the originating component.
func ForComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
