// Package logger configures the process-wide zerolog logger. Import for
// side effects or call Setup again after loading the environment.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	Setup(os.Getenv("LOG_LEVEL"))
}

// Setup installs a console writer with RFC3339 timestamps and applies the
// given level name. Unknown or empty names fall back to info.
func Setup(level string) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// With returns a logger tagged with the component name, so engine logs
// carry a stable "component" field alongside room/connection ids.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
