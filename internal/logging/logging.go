// Package logging builds the zerolog logger shared by the binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON, or human-readable lines when format is
// "console".
func New(level, format, service string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, format, service)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
}

// Asynq adapts a zerolog logger to asynq.Logger.
type Asynq struct {
	L zerolog.Logger
}

func (a Asynq) Debug(args ...interface{}) { a.L.Debug().Msg(fmt.Sprint(args...)) }
func (a Asynq) Info(args ...interface{})  { a.L.Info().Msg(fmt.Sprint(args...)) }
func (a Asynq) Warn(args ...interface{})  { a.L.Warn().Msg(fmt.Sprint(args...)) }
func (a Asynq) Error(args ...interface{}) { a.L.Error().Msg(fmt.Sprint(args...)) }

// Fatal logs and exits, as asynq expects.
func (a Asynq) Fatal(args ...interface{}) {
	a.L.Fatal().Msg(fmt.Sprint(args...))
}
