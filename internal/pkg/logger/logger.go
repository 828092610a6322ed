// Package logger is a thin wrapper around zerolog.Logger adding the
// constructors used across the service. Embedding zerolog.Logger exposes
// the full zerolog API on *Logger.
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Logger struct {
	zerolog.Logger
}

// New constructs a JSON logger writing to stdout, tagged with a role label
// (e.g. "api", "seed") so logs from different entrypoints can be told apart.
func New(role string) *Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	l := zerolog.New(os.Stdout).With().
		Str("role", role).
		Timestamp().
		Logger()
	return &Logger{l}
}

// Nop returns a *Logger that discards all output. Intended for tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// FromContext returns the logger attached to ctx by zerolog's WithContext,
// or the global logger when none is attached.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}
