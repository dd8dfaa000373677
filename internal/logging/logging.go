// Package logging builds the process logger.
//
// Library packages take a *slog.Logger; only the command line decides
// where records go. Records are rendered by charmbracelet/log, whose
// Logger is itself a slog.Handler.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/roach88/prova/internal/errs"
)

// Options configure the logger.
type Options struct {
	// Level is one of debug, info, warn or error.
	Level string

	// Timestamps adds the time to every record.
	Timestamps bool

	// JSON switches to one JSON object per record, for machine output.
	JSON bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: opts.Timestamps,
		Prefix:          "prova",
	})
	if opts.JSON {
		handler.SetFormatter(log.JSONFormatter)
	}
	return slog.New(handler), nil
}

// ParseLevel maps a level name onto a log level. An empty name is info.
func ParseLevel(name string) (log.Level, error) {
	if strings.TrimSpace(name) == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(strings.ToLower(name))
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, err, "invalid log level %q", name).WithField("log_level")
	}
	return level, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
