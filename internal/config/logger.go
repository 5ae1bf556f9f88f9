package config

import (
	"io"
	"log/slog"
)

// NewLogger builds the process logger for env: text output for local runs,
// JSON elsewhere. Debug is enabled for dev, or anywhere when verbose.
func NewLogger(env string, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose || env == EnvDev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch env {
	case EnvDev, EnvProd:
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}
