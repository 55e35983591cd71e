// Package logging installs the process-wide slog logger backed by zerolog.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// New builds a slog logger writing to out. format is "console" for human
// readable output or "json"; level is a zerolog level name.
func New(out io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Stamp}
	}
	log := zerolog.New(out).With().Timestamp().Logger()
	return slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slogLevel(lvl)}),
	), nil
}

// Setup builds a logger with New and makes it the default.
func Setup(out io.Writer, level, format string) error {
	logger, err := New(out, level, format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func slogLevel(lvl zerolog.Level) slog.Level {
	switch {
	case lvl <= zerolog.DebugLevel:
		return slog.LevelDebug
	case lvl == zerolog.InfoLevel:
		return slog.LevelInfo
	case lvl == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
