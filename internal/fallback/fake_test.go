package fallback

import (
	"context"
	"sync"

	"github.com/casualjim/streamgate/provider"
	"github.com/casualjim/streamgate/provider/rawhttp"
)

// fakeProvider replays a fixed script of events for every call.
type fakeProvider struct {
	mu    sync.Mutex
	calls []provider.CompletionParams

	err    error
	events []provider.StreamEvent
	// hang keeps the stream open after the script until the context is done.
	hang      bool
	cancelled chan struct{}
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	ch := make(chan provider.StreamEvent, provider.EventBufferSize)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			if !provider.Send(ctx, ch, ev) {
				provider.TrySend(ch, provider.Error{Err: ctx.Err()})
				return
			}
		}
		if f.hang {
			<-ctx.Done()
			if f.cancelled != nil {
				close(f.cancelled)
			}
			provider.TrySend(ch, provider.Error{Err: ctx.Err()})
		}
	}()
	return ch, nil
}

func (f *fakeProvider) Calls() []provider.CompletionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.CompletionParams(nil), f.calls...)
}

func succeeding(texts ...string) *fakeProvider {
	events := []provider.StreamEvent{provider.Delim{Delim: provider.DelimStart}}
	for _, t := range texts {
		events = append(events, provider.Chunk{Text: t})
	}
	events = append(events, provider.Delim{Delim: provider.DelimEnd})
	return &fakeProvider{events: events}
}

func failing(status int) *fakeProvider {
	return &fakeProvider{events: []provider.StreamEvent{
		provider.Error{Err: &rawhttp.StatusError{StatusCode: status, Message: "upstream says no"}},
	}}
}

func registryOf(models map[string]*fakeProvider) *provider.Registry {
	r := provider.NewRegistry()
	for name, p := range models {
		r.Register(provider.NewModel(name, p))
	}
	return r
}
