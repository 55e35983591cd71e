package provider

import (
	"context"

	"github.com/casualjim/streamgate/messages"
	"github.com/google/uuid"
)

// Provider defines the interface for upstream generation backends.
// Implementations close the returned channel after the last event; an error
// return means no upstream call was attempted.
type Provider interface {
	ChatCompletion(context.Context, CompletionParams) (<-chan StreamEvent, error)
}

// CompletionParams encapsulates all parameters needed for a chat completion request.
type CompletionParams struct {
	// RunID uniquely identifies this completion request for tracking and debugging
	RunID uuid.UUID

	// Model is the upstream model identifier
	Model string

	// Messages is the conversation sent upstream, in order
	Messages []messages.Message

	// Temperature controls sampling, 0 to 2
	Temperature float64

	// MaxTokens bounds the generated output, 0 leaves it to the upstream default
	MaxTokens int

	// AuthToken overrides the adapter's configured upstream credential when set
	AuthToken string

	// User identifies the caller to the upstream for abuse tracking
	User string

	// Prevents unkeyed literals
	_ struct{}
}
