// Package resource turns graph nodes into live Resources: it resolves a
// node's imports recursively and runs the construction strategy its type
// declares.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// Method is a behaviour attached to a Resource during construction.
type Method func(ctx context.Context, args ...any) (any, error)

// Imports maps an import alias to the constructed Resource of its target.
type Imports map[string]*Resource

// Get returns the Resource bound to name, or nil.
func (im Imports) Get(name string) *Resource {
	return im[name]
}

// Resource is the instantiated form of a Node. Resources are built fresh
// for each load and never stored.
type Resource struct {
	// A shallow copy of the node's declared fields.
	graph.Node

	Imports Imports
	Members map[string]any
	Methods map[string]Method

	// Set only on the Graph library.
	Nodes     *graph.Store
	Backlinks *graph.Backlinks
}

func newResource(node *graph.Node, imports Imports) *Resource {
	return &Resource{
		Node:    *node,
		Imports: imports,
		Members: make(map[string]any),
		Methods: make(map[string]Method),
	}
}

// Has reports whether a method named name is attached.
func (r *Resource) Has(name string) bool {
	_, ok := r.Methods[name]
	return ok
}

// Call invokes the named method.
func (r *Resource) Call(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := r.Methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoMethod, name, r.ID)
	}
	return m(ctx, args...)
}

// Member returns a value attached during construction.
func (r *Resource) Member(name string) (any, bool) {
	v, ok := r.Members[name]
	return v, ok
}

// MethodNames returns the attached method names, sorted.
func (r *Resource) MethodNames() []string {
	return slices.Sorted(maps.Keys(r.Methods))
}

// Privileged reports whether the loader granted this Resource live graph access.
func (r *Resource) Privileged() bool {
	return r.Nodes != nil
}

// MarshalJSON renders the node's fields plus the names of what construction
// attached: bound method names and member names.
func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		*graph.Node
		Bound      []string `json:"bound,omitempty"`
		Members    []string `json:"members,omitempty"`
		Privileged bool     `json:"privileged,omitempty"`
	}{
		Node:       &r.Node,
		Bound:      r.MethodNames(),
		Members:    slices.Sorted(maps.Keys(r.Members)),
		Privileged: r.Privileged(),
	})
}
