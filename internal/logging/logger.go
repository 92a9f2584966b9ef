// Package logging wraps zerolog with a small key/value API shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

// Init builds a logger from configuration. Format "text" selects the console writer,
// anything else emits JSON. Output is "stdout", "stderr" or a file path.
func Init(level, format, output string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stdout
	switch output {
	case "", "stdout":
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writer = f
	}

	if strings.EqualFold(format, "text") {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	return New(writer, lvl), nil
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, lvl zerolog.Level) *Logger {
	return &Logger{logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(fields ...any) *Logger {
	ctx := l.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &Logger{logger: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...any) { emit(l.logger.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...any)  { emit(l.logger.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...any)  { emit(l.logger.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...any) { emit(l.logger.Error(), msg, fields) }

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.logger }

func emit(event *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, fields[i+1])
	}
	event.Msg(msg)
}
