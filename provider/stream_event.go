package provider

import (
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

const (
	DelimStart = "start"
	DelimEnd   = "end"
)

// StreamEvent is implemented by every value sent on a completion channel.
type StreamEvent interface {
	streamEvent()
}

// Delim marks stream boundaries.
type Delim struct {
	RunID uuid.UUID
	Delim string
}

func (Delim) streamEvent() {}

// Chunk is an incremental piece of generated text.
type Chunk struct {
	RunID     uuid.UUID
	Text      string
	Timestamp strfmt.DateTime
}

func (Chunk) streamEvent() {}

// Error is a terminal upstream failure.
type Error struct {
	RunID     uuid.UUID
	Err       error
	Timestamp strfmt.DateTime
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("run_id: %s, timestamp: %s, error: %v", e.RunID, e.Timestamp, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
