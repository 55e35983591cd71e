package rawhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/casualjim/streamgate/provider"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

const (
	defaultReadBufferSize = 4 * 1024
	maxErrorBodySize      = 64 * 1024
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

var _ provider.Provider = (*Provider)(nil)

// Provider streams completions from a chat-completions compatible endpoint.
type Provider struct {
	endpoint       string
	apiKey         string
	client         *http.Client
	headers        http.Header
	readBufferSize int
}

var (
	// WithAPIKey sets the default bearer credential.
	WithAPIKey = opts.ForName[Provider, string]("apiKey")
	// WithHTTPClient replaces the HTTP client; it must not impose a total timeout on streams.
	WithHTTPClient = opts.ForName[Provider, *http.Client]("client")
	// WithReadBufferSize sets how many bytes are requested per network read.
	WithReadBufferSize = opts.ForName[Provider, int]("readBufferSize")
)

// WithHeader adds a static header to every upstream request (e.g. attribution headers).
func WithHeader(key, value string) opts.Option[Provider] {
	return opts.Type[Provider](func(p *Provider) error {
		p.headers.Add(key, value)
		return nil
	})
}

// New creates a provider posting to endpoint, the full chat-completions URL.
func New(endpoint string, options ...opts.Option[Provider]) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("rawhttp: endpoint is required")
	}
	p := &Provider{
		endpoint:       endpoint,
		client:         http.DefaultClient,
		headers:        make(http.Header),
		readBufferSize: defaultReadBufferSize,
	}
	if err := opts.Apply(p, options); err != nil {
		return nil, err
	}
	if p.readBufferSize <= 0 {
		p.readBufferSize = defaultReadBufferSize
	}
	return p, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	User        string        `json:"user,omitempty"`
}

func (p *Provider) buildRequest(ctx context.Context, params *provider.CompletionParams) (*http.Request, error) {
	if len(params.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	body := chatRequest{
		Model:       params.Model,
		Messages:    make([]wireMessage, len(params.Messages)),
		Stream:      true,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		User:        params.User,
	}
	for i, m := range params.Messages {
		body.Messages[i] = wireMessage{Role: m.Role.String(), Content: m.Content}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range p.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	token := params.AuthToken
	if token == "" {
		token = p.apiKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (p *Provider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	req, err := p.buildRequest(ctx, &params)
	if err != nil {
		return nil, err
	}

	events := make(chan provider.StreamEvent, provider.EventBufferSize)
	go func() {
		defer close(events)
		p.runStream(ctx, req, &params, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, req *http.Request, command *provider.CompletionParams, events chan<- provider.StreamEvent) {
	fail := func(err error) {
		ev := provider.Error{RunID: command.RunID, Err: err, Timestamp: strfmt.DateTime(time.Now())}
		if ctx.Err() != nil {
			ev.Err = ctx.Err()
			provider.TrySend(events, ev)
			return
		}
		provider.Send(ctx, events, ev)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fail(statusError(resp))
		return
	}

	var (
		splitter lineSplitter
		started  bool
		buf      = make([]byte, p.readBufferSize)
	)

	// handle processes one complete line; it returns false when the stream is over.
	handle := func(line []byte) (bool, error) {
		text, done, err := parseLine(line)
		if err != nil || done {
			return false, err
		}
		if text == "" {
			return true, nil
		}
		if !started {
			started = true
			if !provider.Send(ctx, events, provider.Delim{RunID: command.RunID, Delim: provider.DelimStart}) {
				return false, ctx.Err()
			}
		}
		chunk := provider.Chunk{RunID: command.RunID, Text: text, Timestamp: strfmt.DateTime(time.Now())}
		if !provider.Send(ctx, events, chunk) {
			return false, ctx.Err()
		}
		return true, nil
	}

	for {
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}

		n, readErr := resp.Body.Read(buf)
		for _, line := range splitter.Feed(buf[:n]) {
			more, err := handle(line)
			if err != nil {
				fail(err)
				return
			}
			if !more {
				provider.Send(ctx, events, provider.Delim{RunID: command.RunID, Delim: provider.DelimEnd})
				return
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				fail(readErr)
				return
			}
			if rest := splitter.Flush(); len(rest) > 0 {
				if _, err := handle(rest); err != nil {
					fail(err)
					return
				}
			}
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			provider.Send(ctx, events, provider.Delim{RunID: command.RunID, Delim: provider.DelimEnd})
			return
		}
	}
}

// parseLine interprets one event-stream line. It returns the text delta carried
// by the line, whether the line ends the stream, or an upstream error record.
func parseLine(line []byte) (string, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' || !bytes.HasPrefix(line, dataPrefix) {
		return "", false, nil
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if bytes.Equal(payload, doneMarker) {
		return "", true, nil
	}
	if !gjson.ValidBytes(payload) {
		slog.Debug("skipping malformed event-stream record", slogx.ByteString("record", payload))
		return "", false, nil
	}

	if upstreamErr := gjson.GetBytes(payload, "error"); upstreamErr.Exists() {
		return "", false, &StatusError{
			StatusCode: int(upstreamErr.Get("code").Int()),
			Message:    upstreamErr.Get("message").String(),
			Body:       append([]byte(nil), payload...),
		}
	}
	return gjson.GetBytes(payload, "choices.0.delta.content").String(), false, nil
}

func statusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Body:       body,
	}
}
