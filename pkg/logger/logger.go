// Package logger builds the structured logger shared by every component.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Options controls logger construction.
type Options struct {
	Debug  bool
	Format string // text or json
	Output io.Writer
}

// New returns a slog.Logger backed by a charmbracelet/log handler.
func New(debug bool) *slog.Logger {
	return NewWithOptions(Options{Debug: debug})
}

// NewWithOptions returns a slog.Logger with the given level and formatter.
func NewWithOptions(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}
	formatter := log.TextFormatter
	if opts.Format == "json" {
		formatter = log.JSONFormatter
	}
	handler := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Formatter:       formatter,
	})
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
