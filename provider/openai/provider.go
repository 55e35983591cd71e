package openai

import (
	"context"
	"errors"
	"time"

	"github.com/casualjim/streamgate/messages"
	"github.com/casualjim/streamgate/provider"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ provider.Provider = (*Provider)(nil)

type Provider struct {
	client openai.Client
}

func New(options ...option.RequestOption) *Provider {
	opts := append([]option.RequestOption{option.WithMaxRetries(0)}, options...)
	return &Provider{
		client: openai.NewClient(opts...),
	}
}

func (p *Provider) buildRequest(params *provider.CompletionParams) (openai.ChatCompletionNewParams, []option.RequestOption, error) {
	if len(params.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, nil, errors.New("at least one message is required")
	}

	oaiParams := openai.ChatCompletionNewParams{
		Messages:    messagesToOpenAI(params.Messages),
		Model:       params.Model,
		N:           openai.Int(1),
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxTokens > 0 {
		oaiParams.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	if params.User != "" {
		oaiParams.User = openai.String(params.User)
	}

	var reqOpts []option.RequestOption
	if params.AuthToken != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(params.AuthToken))
	}
	return oaiParams, reqOpts, nil
}

func (p *Provider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	chatParams, reqOpts, err := p.buildRequest(&params)
	if err != nil {
		return nil, err
	}

	events := make(chan provider.StreamEvent, provider.EventBufferSize)
	go func() {
		defer close(events)
		p.runStream(ctx, chatParams, reqOpts, &params, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, params openai.ChatCompletionNewParams, reqOpts []option.RequestOption, command *provider.CompletionParams, events chan<- provider.StreamEvent) {
	strm := p.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	defer strm.Close()

	var started bool
	for strm.Next() {
		// Check context before processing each chunk
		if ctx.Err() != nil {
			break
		}

		chunk := strm.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		if !started {
			started = true
			if !provider.Send(ctx, events, provider.Delim{RunID: command.RunID, Delim: provider.DelimStart}) {
				break
			}
		}

		ev := provider.Chunk{
			RunID:     command.RunID,
			Text:      chunk.Choices[0].Delta.Content,
			Timestamp: strfmt.DateTime(time.Now()),
		}
		if !provider.Send(ctx, events, ev) {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		provider.TrySend(events, provider.Error{RunID: command.RunID, Err: err, Timestamp: strfmt.DateTime(time.Now())})
		return
	}
	if err := strm.Err(); err != nil {
		provider.Send(ctx, events, provider.Error{RunID: command.RunID, Err: err, Timestamp: strfmt.DateTime(time.Now())})
		return
	}
	provider.Send(ctx, events, provider.Delim{RunID: command.RunID, Delim: provider.DelimEnd})
}

func messagesToOpenAI(history []messages.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case messages.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case messages.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}
