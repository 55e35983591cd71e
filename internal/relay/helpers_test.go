package relay

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/streamgate/events"
	"github.com/casualjim/streamgate/internal/store"
	"github.com/casualjim/streamgate/messages"
	"github.com/casualjim/streamgate/provider"
	"github.com/casualjim/streamgate/provider/rawhttp"
	"github.com/fogfish/opts"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type scriptFunc func(ctx context.Context, params provider.CompletionParams, out chan<- provider.StreamEvent)

// fakeProvider runs a script for every call and remembers what it was asked.
type fakeProvider struct {
	mu     sync.Mutex
	calls  []provider.CompletionParams
	script scriptFunc
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()

	ch := make(chan provider.StreamEvent, provider.EventBufferSize)
	go func() {
		defer close(ch)
		f.script(ctx, params, ch)
	}()
	return ch, nil
}

func (f *fakeProvider) Calls() []provider.CompletionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.CompletionParams(nil), f.calls...)
}

func emits(texts ...string) scriptFunc {
	return func(ctx context.Context, _ provider.CompletionParams, out chan<- provider.StreamEvent) {
		provider.Send(ctx, out, provider.Delim{Delim: provider.DelimStart})
		for _, text := range texts {
			if !provider.Send(ctx, out, provider.Chunk{Text: text}) {
				provider.TrySend(out, provider.Error{Err: ctx.Err()})
				return
			}
		}
		provider.Send(ctx, out, provider.Delim{Delim: provider.DelimEnd})
	}
}

func failsWith(status int) scriptFunc {
	return func(ctx context.Context, _ provider.CompletionParams, out chan<- provider.StreamEvent) {
		provider.Send(ctx, out, provider.Error{Err: &rawhttp.StatusError{StatusCode: status}})
	}
}

// hangsAfter emits texts and then keeps the upstream call open until it is cancelled.
func hangsAfter(texts ...string) scriptFunc {
	return func(ctx context.Context, _ provider.CompletionParams, out chan<- provider.StreamEvent) {
		provider.Send(ctx, out, provider.Delim{Delim: provider.DelimStart})
		for _, text := range texts {
			provider.Send(ctx, out, provider.Chunk{Text: text})
		}
		<-ctx.Done()
		provider.TrySend(out, provider.Error{Err: ctx.Err()})
	}
}

// fedBy emits whatever arrives on feed and ends the stream when feed is closed.
func fedBy(feed <-chan string) scriptFunc {
	return func(ctx context.Context, _ provider.CompletionParams, out chan<- provider.StreamEvent) {
		provider.Send(ctx, out, provider.Delim{Delim: provider.DelimStart})
		for {
			select {
			case <-ctx.Done():
				provider.TrySend(out, provider.Error{Err: ctx.Err()})
				return
			case text, ok := <-feed:
				if !ok {
					provider.Send(ctx, out, provider.Delim{Delim: provider.DelimEnd})
					return
				}
				provider.Send(ctx, out, provider.Chunk{Text: text})
			}
		}
	}
}

type harness struct {
	relay  *Relay
	store  store.Store
	engine *gin.Engine
	server *httptest.Server
}

func setupRelay(t *testing.T, models map[string]*fakeProvider, fallbacks []string, options ...opts.Option[Relay]) *harness {
	t.Helper()

	registry := provider.NewRegistry()
	for name, p := range models {
		registry.Register(provider.NewModel(name, p))
	}

	mem, err := store.NewMemory()
	require.NoError(t, err)

	all := append([]opts.Option[Relay]{
		WithStore(mem),
		WithRegistry(registry),
		WithFallbackModels(fallbacks),
	}, options...)
	r, err := New(all...)
	require.NoError(t, err)

	engine := gin.New()
	r.Register(engine)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return &harness{relay: r, store: r.store, engine: engine, server: server}
}

// do runs a request to completion in-process.
func (h *harness) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

// open starts a request over the network and streams back its events.
func (h *harness) open(t *testing.T, ctx context.Context, method, path, body string) (*http.Response, <-chan events.Event) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp, readEvents(resp.Body)
}

func (h *harness) status(t *testing.T, id string) StatusResponse {
	t.Helper()
	w := h.do(http.MethodGet, "/v1/chat/streams/"+id, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func (h *harness) waitInactive(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool { return !h.relay.leases.isActive(id) }, 5*time.Second, 5*time.Millisecond)
}

func readEvents(body io.Reader) <-chan events.Event {
	out := make(chan events.Event, 64)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			ev, err := events.FromJSON([]byte(data))
			if err != nil {
				continue
			}
			out <- ev
		}
	}()
	return out
}

func parseEvents(t *testing.T, body string) []events.Event {
	t.Helper()
	var out []events.Event
	for ev := range readEvents(strings.NewReader(body)) {
		out = append(out, ev)
	}
	return out
}

func next(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream ended early")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func expectClosed(t *testing.T, ch <-chan events.Event) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.False(t, ok, "unexpected event %#v", ev)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
}

func chatBody(t *testing.T, req ChatRequest) string {
	t.Helper()
	if req.Messages == nil {
		req.Messages = []messages.Message{messages.User("Tell me a story")}
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return string(b)
}

func lastMessage(params provider.CompletionParams) messages.Message {
	return params.Messages[len(params.Messages)-1]
}
