// Package logging backs the application's Logger contract with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging contract used throughout the engagement
// agent. Fields are passed as alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
}

type zeroLogger struct {
	log zerolog.Logger
}

// New builds a Logger. In "development" env it writes human-readable console
// output; otherwise it writes structured JSON lines to w (typically stdout).
func New(env string, level string, w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	var out io.Writer = w
	if env == "development" || env == "dev" || env == "" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &zeroLogger{log: l}
}

func (z *zeroLogger) event(e *zerolog.Event, msg string, fields ...any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, fields[i+1])
	}
	e.Msg(msg)
}

func (z *zeroLogger) Debug(msg string, fields ...any) { z.event(z.log.Debug(), msg, fields...) }
func (z *zeroLogger) Info(msg string, fields ...any)  { z.event(z.log.Info(), msg, fields...) }
func (z *zeroLogger) Warn(msg string, fields ...any)  { z.event(z.log.Warn(), msg, fields...) }
func (z *zeroLogger) Error(msg string, fields ...any) { z.event(z.log.Error(), msg, fields...) }

func (z *zeroLogger) With(fields ...any) Logger {
	ctx := z.log.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zeroLogger{log: ctx.Logger()}
}

// Nop returns a Logger that discards everything; useful in tests.
func Nop() Logger {
	return &zeroLogger{log: zerolog.Nop()}
}
