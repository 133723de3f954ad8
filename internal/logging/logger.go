// Package logging provides structured logging for the CLI and embedded frontends.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/portico-labs/portico/internal/events"
)

// Logger wraps zerolog with a component scope and optional event-bus fan-in.
type Logger struct {
	zlog     zerolog.Logger
	scope    string
	eventBus *events.EventBus
	output   io.Writer // current output writer
}

// NewLogger creates a new logger scoped to a component name.
// The event bus is optional; when present, PublishStatus routes user-facing
// status lines through it in addition to the log stream.
func NewLogger(scope string, eventBus *events.EventBus) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("scope", scope).
		Logger()

	return &Logger{
		zlog:     logger,
		scope:    scope,
		eventBus: eventBus,
		output:   output,
	}
}

// NewDefaultCLILogger creates a logger for CLI commands. Logs go to stdout so
// stderr stays reserved for progress bars.
func NewDefaultCLILogger() *Logger {
	l := NewLogger("cli", nil)
	l.SetOutput(os.Stdout)
	return l
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Fatal returns a fatal level event.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// PublishStatus mirrors a user-facing status line onto the event bus, if one
// was supplied, so frontends can surface it without tailing the log stream.
func (l *Logger) PublishStatus(level events.LogLevel, message string, err error) {
	if l.eventBus != nil {
		l.eventBus.PublishLog(level, message, l.scope, err)
	}
}

// SetOutput changes the output writer for the logger.
// This is useful for redirecting logs through progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.zlog = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Str("scope", l.scope).Logger()
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
