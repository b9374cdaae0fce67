// Package logging provides the structured logging wrapper used throughout
// classic-core. It is the only place zerolog is configured; every other
// package logs through this package's functions rather than importing
// zerolog directly.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// consoleOutput wraps w for ANSI-colored console rendering when w is
// stdout/stderr attached to a real terminal, and strips color codes
// otherwise (redirected to a file, piped, or on a non-ANSI Windows
// console lacking native VT100 support). Grounded on the common
// mattn/go-isatty + mattn/go-colorable pairing used throughout the Go
// ecosystem's CLI logging setups.
func consoleOutput(w io.Writer) (io.Writer, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return w, false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return w, false
	}
	return colorable.NewColorable(f), true
}

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format controls how log records are rendered.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the key=value helpers used across the
// core's packages.
type Logger struct {
	logger zerolog.Logger
}

// New builds a Logger from cfg. A zero-value Config produces an info-level
// JSON logger writing to stdout.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		colorOut, isColor := consoleOutput(cfg.Output)
		output = zerolog.ConsoleWriter{
			Out:        colorOut,
			TimeFormat: time.RFC3339,
			NoColor:    !isColor,
		}
	}

	zlog := zerolog.New(output).With().Timestamp().Logger()
	zlog = zlog.Level(levelToZerolog(cfg.Level))

	return &Logger{logger: zlog}
}

func levelToZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.emit(l.logger.Debug(), msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.emit(l.logger.Info(), msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.emit(l.logger.Warn(), msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.emit(l.logger.Error(), msg, fields...) }

func (l *Logger) emit(event *zerolog.Event, msg string, fields ...interface{}) {
	l.addFields(event, fields...)
	event.Msg(msg)
}

// WithField returns a child Logger carrying an additional field on every
// subsequent record.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields returns a child Logger carrying the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

func (l *Logger) addFields(event *zerolog.Event, fields ...interface{}) {
	if len(fields)%2 != 0 {
		event.Str("log_error", "odd number of fields")
		return
	}
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			event.Str("log_error", fmt.Sprintf("field key at index %d is not a string", i))
			continue
		}
		event.Interface(key, fields[i+1])
	}
}

// InitGlobal configures the package-level zerolog logger used by the
// Debug/Info/Warn/Error convenience functions below. cmd/classic calls this
// once at startup from the parsed settings snapshot.
func InitGlobal(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		colorOut, isColor := consoleOutput(cfg.Output)
		output = zerolog.ConsoleWriter{
			Out:        colorOut,
			TimeFormat: time.RFC3339,
			NoColor:    !isColor,
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(levelToZerolog(cfg.Level))
}

func Debug(msg string, fields ...interface{}) { globalEmit(log.Debug(), msg, fields...) }
func Info(msg string, fields ...interface{})  { globalEmit(log.Info(), msg, fields...) }
func Warn(msg string, fields ...interface{})  { globalEmit(log.Warn(), msg, fields...) }
func Error(msg string, fields ...interface{}) { globalEmit(log.Error(), msg, fields...) }

func globalEmit(event *zerolog.Event, msg string, fields ...interface{}) {
	(&Logger{}).addFields(event, fields...)
	event.Msg(msg)
}
