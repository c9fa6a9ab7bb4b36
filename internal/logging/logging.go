package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a console zerolog.Logger with the provided level string.
func New(level string) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(writer).
		Level(levelFromString(level)).
		With().Timestamp().
		Logger()
}

func levelFromString(value string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return zerolog.ErrorLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
