package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

func init() {
	// stdout belongs to command output, so diagnostics go to stderr.
	// Reconfigured by Init once flags and config are read.
	Logger = zerolog.New(os.Stderr).
		With().
		Timestamp().
		Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = Logger
}

// ParseLevel maps a config level name to a zerolog level, defaulting to warn
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

// Init initializes the global logger with the specified level and output
func Init(level string, pretty bool) {
	InitWriter(os.Stderr, level, pretty)
}

// InitWriter is Init with an explicit destination
func InitWriter(w io.Writer, level string, pretty bool) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	output := w
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
		}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Logger()

	log.Logger = Logger
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}
