// Package logging builds the console logger shared by a run.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level maps the -v count onto a level: none is error, one is warn, two
// is info and three or more is debug. Quiet disables logging.
func Level(verbosity int, quiet bool) zerolog.Level {
	if quiet {
		return zerolog.Disabled
	}
	switch {
	case verbosity <= 0:
		return zerolog.ErrorLevel
	case verbosity == 1:
		return zerolog.WarnLevel
	case verbosity == 2:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// New returns a logger writing human-readable lines to w.
func New(w io.Writer, verbosity int, quiet bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
	}
	return zerolog.New(cw).
		Level(Level(verbosity, quiet)).
		With().
		Timestamp().
		Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
