package events

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	streamIDJSON = []byte(`{"type":"streamId"}`)
	resumeJSON   = []byte(`{"type":"resume"}`)
	deltaJSON    = []byte(`{"type":"delta"}`)
	doneJSON     = []byte(`{"type":"done"}`)
	abortJSON    = []byte(`{"type":"abort"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

// encoder accumulates sjson patches and remembers the first failure.
type encoder struct {
	buf []byte
	err error
}

func newEncoder(marker []byte) *encoder {
	return &encoder{buf: append([]byte(nil), marker...)}
}

func (e *encoder) set(path string, value any) *encoder {
	if e.err != nil {
		return e
	}
	e.buf, e.err = sjson.SetBytes(e.buf, path, value)
	return e
}

func (e *encoder) timestamp(ts strfmt.DateTime) *encoder {
	if time.Time(ts).IsZero() {
		return e
	}
	return e.set("timestamp", ts.String())
}

func (e *encoder) bytes() ([]byte, error) {
	return e.buf, e.err
}

func (e StreamID) MarshalJSON() ([]byte, error) {
	enc := newEncoder(streamIDJSON).set("streamId", e.StreamID)
	if e.Resumed {
		enc.set("resumed", true)
	}
	return enc.timestamp(e.Timestamp).bytes()
}

func (e Replay) MarshalJSON() ([]byte, error) {
	return newEncoder(resumeJSON).set("streamId", e.StreamID).set("content", e.Content).timestamp(e.Timestamp).bytes()
}

func (e Delta) MarshalJSON() ([]byte, error) {
	return newEncoder(deltaJSON).set("streamId", e.StreamID).set("content", e.Content).timestamp(e.Timestamp).bytes()
}

func (e Done) MarshalJSON() ([]byte, error) {
	return newEncoder(doneJSON).set("streamId", e.StreamID).set("model", e.Model).timestamp(e.Timestamp).bytes()
}

func (e Abort) MarshalJSON() ([]byte, error) {
	enc := newEncoder(abortJSON).set("streamId", e.StreamID)
	if e.Reason != "" {
		enc.set("reason", e.Reason)
	}
	return enc.timestamp(e.Timestamp).bytes()
}

func (e Error) MarshalJSON() ([]byte, error) {
	return newEncoder(errorJSON).set("streamId", e.StreamID).set("error", e.Message).timestamp(e.Timestamp).bytes()
}

// ToJSON serializes any event to its wire form.
func ToJSON(e Event) ([]byte, error) {
	switch e := e.(type) {
	case StreamID:
		return e.MarshalJSON()
	case Replay:
		return e.MarshalJSON()
	case Delta:
		return e.MarshalJSON()
	case Done:
		return e.MarshalJSON()
	case Abort:
		return e.MarshalJSON()
	case Error:
		return e.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown event type: %T", e)
	}
}

// FromJSON parses the wire form of an event.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	result := gjson.ParseBytes(data)

	typ := result.Get("type")
	if !typ.Exists() {
		return nil, fmt.Errorf("missing required field 'type'")
	}
	streamID := result.Get("streamId")
	if !streamID.Exists() {
		return nil, fmt.Errorf("missing required field 'streamId'")
	}
	ts, err := parseTimestamp(result.Get("timestamp"))
	if err != nil {
		return nil, err
	}

	switch Type(typ.String()) {
	case TypeStreamID:
		return StreamID{StreamID: streamID.String(), Resumed: result.Get("resumed").Bool(), Timestamp: ts}, nil
	case TypeResume:
		return Replay{StreamID: streamID.String(), Content: result.Get("content").String(), Timestamp: ts}, nil
	case TypeDelta:
		return Delta{StreamID: streamID.String(), Content: result.Get("content").String(), Timestamp: ts}, nil
	case TypeDone:
		return Done{StreamID: streamID.String(), Model: result.Get("model").String(), Timestamp: ts}, nil
	case TypeAbort:
		return Abort{StreamID: streamID.String(), Reason: result.Get("reason").String(), Timestamp: ts}, nil
	case TypeError:
		return Error{StreamID: streamID.String(), Message: result.Get("error").String(), Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", typ.String())
	}
}

func parseTimestamp(v gjson.Result) (strfmt.DateTime, error) {
	if !v.Exists() || v.String() == "" {
		return strfmt.DateTime{}, nil
	}
	ts, err := strfmt.ParseDateTime(v.String())
	if err != nil {
		return strfmt.DateTime{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return ts, nil
}
