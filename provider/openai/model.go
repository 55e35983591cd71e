package openai

import (
	"sync"

	"github.com/casualjim/streamgate/provider"
	"github.com/openai/openai-go/option"
)

// Models returns one provider.Model per name. They share a single SDK client,
// created with opts the first time any of them is used.
func Models(names []string, opts ...option.RequestOption) []provider.Model {
	client := &lazyProvider{opts: opts}
	out := make([]provider.Model, 0, len(names))
	for _, name := range names {
		out = append(out, &model{name: name, client: client})
	}
	return out
}

type lazyProvider struct {
	opts []option.RequestOption
	once sync.Once
	prov *Provider
}

func (l *lazyProvider) get() *Provider {
	l.once.Do(func() {
		l.prov = New(l.opts...)
	})
	return l.prov
}

var _ provider.Model = (*model)(nil)

type model struct {
	name   string
	client *lazyProvider
}

func (m *model) Name() string { return m.name }

func (m *model) Provider() provider.Provider { return m.client.get() }
