package events

import (
	"github.com/go-openapi/strfmt"
)

// Type is the wire discriminator of an event.
type Type string

const (
	TypeStreamID Type = "streamId"
	TypeResume   Type = "resume"
	TypeDelta    Type = "delta"
	TypeDone     Type = "done"
	TypeAbort    Type = "abort"
	TypeError    Type = "error"
)

// Event is implemented by every record sent to a client.
type Event interface {
	Kind() Type
	Stream() string
	event()
}

// IsTerminal reports whether no further events follow e on the same stream.
func IsTerminal(e Event) bool {
	switch e.Kind() {
	case TypeDone, TypeAbort, TypeError:
		return true
	default:
		return false
	}
}

// StreamID announces the session id of a stream. Resumed is true when the
// stream continues an earlier session.
type StreamID struct {
	StreamID  string          `json:"streamId"`
	Resumed   bool            `json:"resumed,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StreamID) Kind() Type       { return TypeStreamID }
func (e StreamID) Stream() string { return e.StreamID }
func (StreamID) event()           {}

// Replay carries text generated before the stream was interrupted.
type Replay struct {
	StreamID  string          `json:"streamId"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Replay) Kind() Type       { return TypeResume }
func (e Replay) Stream() string { return e.StreamID }
func (Replay) event()           {}

// Delta carries one chunk of live output.
type Delta struct {
	StreamID  string          `json:"streamId"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Delta) Kind() Type       { return TypeDelta }
func (e Delta) Stream() string { return e.StreamID }
func (Delta) event()           {}

// Done terminates a stream that completed normally.
type Done struct {
	StreamID  string          `json:"streamId"`
	Model     string          `json:"model"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Done) Kind() Type       { return TypeDone }
func (e Done) Stream() string { return e.StreamID }
func (Done) event()           {}

// Abort terminates a stream whose generation was cancelled.
type Abort struct {
	StreamID  string          `json:"streamId"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Abort) Kind() Type       { return TypeAbort }
func (e Abort) Stream() string { return e.StreamID }
func (Abort) event()           {}

// Error terminates a stream that failed after it started.
type Error struct {
	StreamID  string          `json:"streamId"`
	Message   string          `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) Kind() Type       { return TypeError }
func (e Error) Stream() string { return e.StreamID }
func (Error) event()           {}
