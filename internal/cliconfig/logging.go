package cliconfig

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	cglog "github.com/segarro/cachegate/pkg/log"
)

// Logger returns the CLI logger: console output on stderr at the given level.
func Logger(level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(cglog.ParseLevel(level)).
		With().Timestamp().Logger()
}
