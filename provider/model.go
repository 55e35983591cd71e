package provider

import (
	"slices"

	"github.com/alphadose/haxmap"
)

// Model pairs a model identifier with the provider that serves it.
type Model interface {
	Name() string
	Provider() Provider
}

type staticModel struct {
	name string
	prov Provider
}

func (m *staticModel) Name() string       { return m.name }
func (m *staticModel) Provider() Provider { return m.prov }

// NewModel binds name to an already constructed provider.
func NewModel(name string, p Provider) Model {
	return &staticModel{name: name, prov: p}
}

// Registry maps model identifiers to models. It doubles as the allow-list of
// models a client may request.
type Registry struct {
	models *haxmap.Map[string, Model]
}

// NewRegistry creates a registry pre-populated with models.
func NewRegistry(models ...Model) *Registry {
	r := &Registry{models: haxmap.New[string, Model]()}
	for _, m := range models {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a model.
func (r *Registry) Register(m Model) {
	r.models.Set(m.Name(), m)
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (Model, bool) {
	return r.models.Get(name)
}

// Allowed reports whether name is a registered model.
func (r *Registry) Allowed(name string) bool {
	_, ok := r.models.Get(name)
	return ok
}

// Names returns the registered model identifiers in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.models.Len())
	r.models.ForEach(func(name string, _ Model) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}
