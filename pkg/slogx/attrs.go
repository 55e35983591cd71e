package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyStreamID is the key under which stream ids are logged.
	KeyStreamID = "stream_id"
	// KeyModel is the key under which model identifiers are logged.
	KeyModel = "model"
	// KeyOutcome is the key used to tag how a stream ended (completed, cancelled, failed).
	KeyOutcome = "outcome"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
// A nil error is logged as an empty string instead of panicking.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ByteString creates a slog.Attr with the given key and a string representation of the byte slice value.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName creates a slog.Attr with the provided logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// StreamID tags a log record with the stream session it belongs to.
func StreamID(id string) slog.Attr {
	return slog.String(KeyStreamID, id)
}

// Model tags a log record with the upstream model identifier.
func Model(name string) slog.Attr {
	return slog.String(KeyModel, name)
}

// Outcome tags a log record with how a stream ended.
func Outcome(outcome string) slog.Attr {
	return slog.String(KeyOutcome, outcome)
}
