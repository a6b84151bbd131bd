// Package logging builds the process's zerolog.Logger. There is no
// package-level global: New returns a logger once at startup, and every
// component that needs one takes it as a constructor parameter.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how New builds the root logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds the root logger for the process. Every subsequent logger in
// the application is derived from this one via With().
func New(cfg Config) zerolog.Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent derives a child logger carrying a component field, the
// convention every package in this module follows for its own logger.
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// WithScan derives a child logger carrying scan_id/root_id fields, used
// for the duration of one scan.
func WithScan(base zerolog.Logger, scanID, rootID int64) zerolog.Logger {
	return base.With().Int64("scan_id", scanID).Int64("root_id", rootID).Logger()
}
