// Package graph holds the live node graph: the Node Store and the Backlink
// Index kept in step with it.
//
// A Graph is constructed once per execution context and passed explicitly to
// the loader and the persistence adapter.
package graph

import "sync"

// Graph bundles the Store and its Backlinks behind one lock, so an insertion
// and its backlink maintenance are observed together.
type Graph struct {
	Store     *Store
	Backlinks *Backlinks
}

// New creates an empty graph.
func New() *Graph {
	mu := new(sync.RWMutex)
	backlinks := newBacklinks(mu)
	return &Graph{
		Store:     newStore(mu, backlinks),
		Backlinks: backlinks,
	}
}

// Get is shorthand for g.Store.Get.
func (g *Graph) Get(id string) (*Node, error) {
	return g.Store.Get(id)
}

// Insert is shorthand for g.Store.Insert(node.ID, node).
func (g *Graph) Insert(node *Node) error {
	if node == nil {
		return g.Store.Insert("", nil)
	}
	return g.Store.Insert(node.ID, node)
}

// InsertAll inserts nodes in order, stopping at the first failure.
func (g *Graph) InsertAll(nodes []*Node) error {
	for _, node := range nodes {
		if err := g.Insert(node); err != nil {
			return err
		}
	}
	return nil
}

// Outbound returns the links declared by id, or nil if id is absent.
func (g *Graph) Outbound(id string) []string {
	node, err := g.Store.Get(id)
	if err != nil {
		return nil
	}
	return node.Links
}

// Neighbors returns the ids connected to id in either direction, outbound first.
func (g *Graph) Neighbors(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, other := range g.Outbound(id) {
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	for _, other := range g.Backlinks.Get(id) {
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// Orphans returns the ids of stored nodes with no links in either direction.
func (g *Graph) Orphans() []string {
	var out []string
	for _, id := range g.Store.IDs() {
		if len(g.Neighbors(id)) == 0 {
			out = append(out, id)
		}
	}
	return out
}
