package resource

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// Saver persists user-created nodes. The persistence adapter implements it.
type Saver interface {
	Save(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error)
}

// Construction is what a handler receives: the Resource being built, its
// resolved imports, and the loader running the construction.
type Construction struct {
	Ctx      context.Context
	Resource *Resource
	Imports  Imports
	Type     *graph.Node
	Loader   *Loader
}

// Handler is a statically linked construction strategy.
type Handler func(c *Construction) error

// Registry maps handler ids to construction handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds id to h. Registering an id twice is an error.
func (r *Registry) Register(id string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("handler %q already registered", id)
	}
	r.handlers[id] = h
	return nil
}

// MustRegister is Register for package-level setup.
func (r *Registry) MustRegister(id string, h Handler) {
	if err := r.Register(id, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler bound to id.
func (r *Registry) Lookup(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns the registered handler ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}
