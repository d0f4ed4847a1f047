// Package telemetry provides the structured logger every component in the
// orchestrator depends on. It keeps the field-builder shape the rest of the
// codebase was written against (WithModule, leveled methods, typed field
// constructors) while delegating the actual encoding to zerolog.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Field is a single structured logging attribute.
type Field struct {
	key string
	set func(e *zerolog.Event)
}

// String builds a string field.
func String(key, value string) Field {
	return Field{key: key, set: func(e *zerolog.Event) { e.Str(key, value) }}
}

// Int builds an integer field.
func Int(key string, value int) Field {
	return Field{key: key, set: func(e *zerolog.Event) { e.Int(key, value) }}
}

// Float64 builds a float field.
func Float64(key string, value float64) Field {
	return Field{key: key, set: func(e *zerolog.Event) { e.Float64(key, value) }}
}

// Bool builds a boolean field.
func Bool(key string, value bool) Field {
	return Field{key: key, set: func(e *zerolog.Event) { e.Bool(key, value) }}
}

// Duration builds a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{key: key, set: func(e *zerolog.Event) { e.Dur(key, value) }}
}

// Err builds an error field under the conventional "error" key.
func Err(err error) Field {
	return Field{key: "error", set: func(e *zerolog.Event) { e.AnErr("error", err) }}
}

// Logger is a leveled, structured logger scoped to a module.
type Logger struct {
	zl zerolog.Logger
}

// New builds a root Logger writing JSON lines to w at the given level.
func New(w io.Writer, level zerolog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return Logger{zl: zl}
}

// WithModule returns a child logger tagging every record with module=name.
func (l Logger) WithModule(name string) Logger {
	return Logger{zl: l.zl.With().Str("module", name).Logger()}
}

func (l Logger) apply(e *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		f.set(e)
	}
	return e
}

// Trace logs at trace level.
func (l Logger) Trace(msg string, fields ...Field) {
	l.apply(l.zl.Trace(), fields).Msg(msg)
}

// Debug logs at debug level.
func (l Logger) Debug(msg string, fields ...Field) {
	l.apply(l.zl.Debug(), fields).Msg(msg)
}

// Info logs at info level.
func (l Logger) Info(msg string, fields ...Field) {
	l.apply(l.zl.Info(), fields).Msg(msg)
}

// Warn logs at warn level.
func (l Logger) Warn(msg string, fields ...Field) {
	l.apply(l.zl.Warn(), fields).Msg(msg)
}

// Error logs at error level.
func (l Logger) Error(msg string, fields ...Field) {
	l.apply(l.zl.Error(), fields).Msg(msg)
}

// Fatal logs at fatal level and exits the process, mirroring the
// `.expect(...)` fail-fast startup idiom of the system this was ported from.
func (l Logger) Fatal(msg string, fields ...Field) {
	l.apply(l.zl.Fatal(), fields).Msg(msg)
}
