// Package observability wires logging and error reporting.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the service logger: JSON on stdout in production, console
// output otherwise. Unknown levels fall back to info.
func NewLogger(level string, production bool) zerolog.Logger {
	return newLogger(os.Stdout, level, production)
}

func newLogger(w io.Writer, level string, production bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if !production {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "doctorauth").Logger()
}
