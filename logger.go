package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// logWriter receives log output; tests may redirect it.
var logWriter io.Writer = os.Stderr

// logger is the process-wide logger. It is built once and never replaced;
// the active level is zerolog's global level, which setLogLevel changes
// atomically while decode goroutines keep logging.
var logger = newLogger(logWriter)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func newLogger(w io.Writer) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(console).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}

// setLogLevel switches logging to the named level ("debug", "info", ...).
// An empty name selects info.
func setLogLevel(levelName string) error {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func debugLog(format string, args ...any) {
	logger.Debug().Msgf(format, args...)
}
