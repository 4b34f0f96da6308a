// Package logger configures the global zerolog logger.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up console logging at the given level. An unknown level falls
// back to info.
func Init(level string) {
	InitWithWriter(os.Stdout, level)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(out io.Writer, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	SetLevel(level)
}

// SetLevel changes the global log level.
func SetLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
		log.Debug().Str("loglevel", level).Msg("unknown log level, using info")
	}

	zerolog.SetGlobalLevel(parsed)
}

// ErrorWithStack logs err together with the stack of the caller.
func ErrorWithStack(err error) {
	log.Error().Msgf("%+v", errors.WithStack(err))
}

// FromContext returns the logger stored in ctx by the HTTP middleware, or
// the global logger when there is none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// ErrorWithStackCtx is ErrorWithStack through the logger in ctx.
func ErrorWithStackCtx(ctx context.Context, err error) {
	FromContext(ctx).Error().Msgf("%+v", errors.WithStack(err))
}
