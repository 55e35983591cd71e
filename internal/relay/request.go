package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/streamgate/messages"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096

	minTemperature = 0.0
	maxTemperature = 2.0
	minMaxTokens   = 1
	maxMaxTokens   = 32768
)

// ChatRequest is the body of POST /v1/chat/completions.
type ChatRequest struct {
	Messages       []messages.Message `json:"messages" jsonschema:"required,minItems=1"`
	Model          string             `json:"model,omitempty" jsonschema:"description=Preferred model; must be one of the configured models"`
	Temperature    *float64           `json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2,default=0.7"`
	MaxTokens      *int               `json:"maxTokens,omitempty" jsonschema:"minimum=1,maximum=32768,default=4096"`
	Resume         bool               `json:"resume,omitempty" jsonschema:"description=Continue the stream named by streamId"`
	StreamID       string             `json:"streamId,omitempty"`
	PartialContent string             `json:"partialContent,omitempty" jsonschema:"description=Text the client already received; preferred over stored text"`
}

// Validate checks the request; allowed reports whether a model may be requested.
func (r *ChatRequest) Validate(allowed func(string) bool) error {
	if err := messages.Validate(r.Messages); err != nil {
		return err
	}
	if r.Model != "" && !allowed(r.Model) {
		return fmt.Errorf("model %q is not available", r.Model)
	}
	if t := r.Temperature; t != nil && (*t < minTemperature || *t > maxTemperature) {
		return fmt.Errorf("temperature must be between %g and %g", minTemperature, maxTemperature)
	}
	if n := r.MaxTokens; n != nil && (*n < minMaxTokens || *n > maxMaxTokens) {
		return fmt.Errorf("maxTokens must be between %d and %d", minMaxTokens, maxMaxTokens)
	}
	if r.Resume && r.StreamID == "" {
		return errors.New("streamId is required to resume")
	}
	return nil
}

// Sampling returns the temperature and token limit with defaults applied.
func (r *ChatRequest) Sampling() (float64, int) {
	temperature, maxTokens := DefaultTemperature, DefaultMaxTokens
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		maxTokens = *r.MaxTokens
	}
	return temperature, maxTokens
}

var errInvalidAuthorization = errors.New("invalid authorization header")

// bearerToken extracts the upstream credential. An absent header is not an error.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errInvalidAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errInvalidAuthorization
	}
	return token, nil
}
