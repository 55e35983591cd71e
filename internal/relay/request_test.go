package relay

import (
	"testing"

	"github.com/casualjim/streamgate/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestChatRequest_Validate(t *testing.T) {
	allowed := func(name string) bool { return name == "gpt-4o" }
	history := []messages.Message{messages.User("hi")}

	tests := []struct {
		name    string
		req     ChatRequest
		wantErr string
	}{
		{name: "minimal", req: ChatRequest{Messages: history}},
		{name: "known model", req: ChatRequest{Messages: history, Model: "gpt-4o"}},
		{name: "no messages", req: ChatRequest{}, wantErr: "conversation is empty"},
		{name: "bad role", req: ChatRequest{Messages: []messages.Message{{Role: "robot", Content: "x"}}}, wantErr: "invalid role"},
		{name: "unknown model", req: ChatRequest{Messages: history, Model: "gpt-2"}, wantErr: `model "gpt-2" is not available`},
		{name: "temperature too low", req: ChatRequest{Messages: history, Temperature: ptr(-0.1)}, wantErr: "temperature"},
		{name: "temperature too high", req: ChatRequest{Messages: history, Temperature: ptr(2.5)}, wantErr: "temperature"},
		{name: "temperature bounds", req: ChatRequest{Messages: history, Temperature: ptr(2.0)}},
		{name: "zero tokens", req: ChatRequest{Messages: history, MaxTokens: ptr(0)}, wantErr: "maxTokens"},
		{name: "too many tokens", req: ChatRequest{Messages: history, MaxTokens: ptr(40000)}, wantErr: "maxTokens"},
		{name: "resume without id", req: ChatRequest{Messages: history, Resume: true}, wantErr: "streamId is required"},
		{name: "resume", req: ChatRequest{Messages: history, Resume: true, StreamID: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(allowed)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChatRequest_Sampling(t *testing.T) {
	temperature, maxTokens := (&ChatRequest{}).Sampling()
	assert.InDelta(t, DefaultTemperature, temperature, 1e-9)
	assert.Equal(t, DefaultMaxTokens, maxTokens)

	temperature, maxTokens = (&ChatRequest{Temperature: ptr(0.0), MaxTokens: ptr(12)}).Sampling()
	assert.Zero(t, temperature)
	assert.Equal(t, 12, maxTokens)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "", want: ""},
		{header: "Bearer sk-123", want: "sk-123"},
		{header: "bearer  sk-123 ", want: "sk-123"},
		{header: "Basic dXNlcjpwYXNz", wantErr: true},
		{header: "Bearer", wantErr: true},
		{header: "Bearer   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalidAuthorization)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
