// Package logging builds the structured loggers that the core components
// which log (Position Manager, Signal Router, Monitor Loop) receive at
// construction time. There is no package-level logger
// singleton anywhere in the core (§9: "global singletons for
// logger/config/trader become explicit construction-time injections").
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root logger's verbosity and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output instead of JSON lines
}

// New builds a root zerolog.Logger. Component constructors should call
// .With().Str("component", name).Logger() on the result rather than
// reaching for a global.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// Component derives a child logger tagged with a component name, the
// convention every package under internal/ follows for its own logger.
func Component(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}
