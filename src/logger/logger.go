package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// L is the global logger instance. It discards everything until InitLogger runs,
// so packages can log safely from tests.
var L = zerolog.Nop()

// InitLogger initializes the global logger.
// Call this once at application startup, after loading config.
func InitLogger(logLevelStr, format string) {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevelStr))
	if err != nil || logLevelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if strings.ToLower(format) != "json" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	L = zerolog.New(output).With().Timestamp().Logger()
	if err != nil {
		L.Warn().Str("configuredLevel", logLevelStr).Msg("Invalid LOG_LEVEL specified, defaulting to INFO")
	}
	L.Info().Str("level", level.String()).Str("format", format).Msg("Logger initialized")
}

// WithComponent returns a child logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return L.With().Str("component", component).Logger()
}

// FromContext retrieves a logger from context, or returns the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &L
}
