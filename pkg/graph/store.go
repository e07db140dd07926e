package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Change describes one Store insertion. Previous is nil on first insertion.
type Change struct {
	ID       string
	Node     *Node
	Previous *Node
}

// Store is the authoritative id -> Node mapping.
// Records are copied on the way in and on the way out.
type Store struct {
	mu        *sync.RWMutex
	nodes     map[string]*Node
	backlinks *Backlinks

	// pending is appended under mu, so it is in mutation order.
	// One caller at a time drains it.
	subMu      sync.Mutex
	nextSubID  int
	subs       map[int]func(Change)
	pending    []Change
	delivering bool
}

func newStore(mu *sync.RWMutex, backlinks *Backlinks) *Store {
	return &Store{
		mu:        mu,
		nodes:     make(map[string]*Node),
		backlinks: backlinks,
		subs:      make(map[int]func(Change)),
	}
}

// Get returns the node stored at id.
func (s *Store) Get(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return node.Clone(), nil
}

// Has reports whether id is present.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Insert stores node under id, replacing any previous record, and updates
// the backlink index in the same step. node.ID must equal id.
func (s *Store) Insert(id string, node *Node) error {
	if node == nil {
		return fmt.Errorf("%w: nil node for %s", ErrContractViolation, id)
	}
	if node.ID != id {
		return fmt.Errorf("%w: node id %q inserted as %q", ErrContractViolation, node.ID, id)
	}

	stored := node.Clone()
	if stored.Links == nil {
		stored.Links = []string{}
	}

	s.mu.Lock()
	previous := s.nodes[id]
	s.nodes[id] = stored
	s.backlinks.onInsert(stored, previous)
	s.enqueue(Change{ID: id, Node: stored.Clone(), Previous: previous.Clone()})
	s.mu.Unlock()

	s.drain()
	return nil
}

// Subscribe registers fn to observe every insertion, in the order the
// insertions were applied. Callbacks never run concurrently with each other.
// An Insert made from a callback, or racing another Insert's delivery,
// returns before its Change is delivered.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// enqueue must be called with mu held.
func (s *Store) enqueue(c Change) {
	s.subMu.Lock()
	s.pending = append(s.pending, c)
	s.subMu.Unlock()
}

// drain delivers pending changes unless another caller already is.
func (s *Store) drain() {
	s.subMu.Lock()
	if s.delivering {
		s.subMu.Unlock()
		return
	}
	s.delivering = true

	for len(s.pending) > 0 {
		c := s.pending[0]
		s.pending[0] = Change{}
		s.pending = s.pending[1:]

		fns := make([]func(Change), 0, len(s.subs))
		for _, id := range slices.Sorted(maps.Keys(s.subs)) {
			fns = append(fns, s.subs[id])
		}

		s.subMu.Unlock()
		for _, fn := range fns {
			fn(c)
		}
		s.subMu.Lock()
	}
	s.delivering = false
	s.subMu.Unlock()
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// IDs returns all node ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.nodes))
}

// Nodes returns a snapshot of every node, keyed by id.
func (s *Store) Nodes() map[string]*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Node, len(s.nodes))
	for id, node := range s.nodes {
		out[id] = node.Clone()
	}
	return out
}

// OfType returns every node whose type is typ, sorted by id.
func (s *Store) OfType(typ string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Node
	for _, id := range slices.Sorted(maps.Keys(s.nodes)) {
		if node := s.nodes[id]; node.Type == typ {
			out = append(out, node.Clone())
		}
	}
	return out
}
