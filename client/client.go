// Package client talks to a streamgate server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/messages"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Client calls the gateway's HTTP API.
type Client struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

var (
	// WithToken sets the bearer credential forwarded to the upstream model.
	WithToken = opts.ForName[Client, string]("token")
	// WithUserID identifies the caller for rate limiting.
	WithUserID = opts.ForName[Client, string]("userID")
	// WithHTTPClient replaces the HTTP client. It must not time out long streams.
	WithHTTPClient = opts.ForName[Client, *http.Client]("http")
)

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, options ...opts.Option[Client]) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	return c, nil
}

// Request is the body of a completion call.
type Request struct {
	Messages       []messages.Message `json:"messages"`
	Model          string             `json:"model,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty"`
	MaxTokens      *int               `json:"maxTokens,omitempty"`
	Resume         bool               `json:"resume,omitempty"`
	StreamID       string             `json:"streamId,omitempty"`
	PartialContent string             `json:"partialContent,omitempty"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("streamgate: %d %s", e.StatusCode, e.Message)
}

// Status describes what a stream produced so far.
type Status struct {
	StreamID string `json:"streamId"`
	Model    string `json:"model"`
	Content  string `json:"content"`
	Active   bool   `json:"active"`
}

// Stream starts or resumes a completion. The channel closes after a terminal
// event, when the connection drops or when ctx is done; the caller tells those
// apart by whether the last event was terminal.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan events.Event, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}
	return c.events(ctx, resp), nil
}

// Watch follows a stream that is in flight on the server.
func (c *Client) Watch(ctx context.Context, streamID string) (<-chan events.Event, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/chat/streams/"+url.PathEscape(streamID)+"/events", nil)
	if err != nil {
		return nil, err
	}
	return c.events(ctx, resp), nil
}

// Status fetches the stored state of a stream.
func (c *Client) Status(ctx context.Context, streamID string) (*Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/chat/streams/"+url.PathEscape(streamID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("client: decode status: %w", err)
	}
	return &st, nil
}

// Cancel stops a stream that is in flight.
func (c *Client) Cancel(ctx context.Context, streamID string) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/chat/streams/"+url.PathEscape(streamID)+"/cancel", nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

func (c *Client) events(ctx context.Context, resp *http.Response) <-chan events.Event {
	out := make(chan events.Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data:")); ok {
				ev, perr := events.FromJSON(bytes.TrimSpace(data))
				if perr == nil {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
					if events.IsTerminal(ev) {
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
