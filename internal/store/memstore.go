package store

import (
	"context"
	"slices"
	"sync"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// MemStore is an in-memory implementation of Storer.
// Several persistence adapters may share one MemStore to stand in for
// browser tabs sharing a database.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]*graph.Node
	order []string
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]*graph.Node),
	}
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

func (s *MemStore) UpsertNode(ctx context.Context, node *graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; !exists {
		s.order = append(s.order, node.ID)
	}
	s.nodes[node.ID] = node.Clone()
	return nil
}

func (s *MemStore) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if node, ok := s.nodes[id]; ok {
		return node.Clone(), nil
	}
	return nil, nil
}

func (s *MemStore) ListNodes(ctx context.Context) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*graph.Node, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.nodes[id].Clone())
	}
	return result, nil
}

func (s *MemStore) ListNodesByType(ctx context.Context, typ string) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*graph.Node
	for _, id := range s.order {
		if node := s.nodes[id]; node.Type == typ {
			result = append(result, node.Clone())
		}
	}
	return result, nil
}

func (s *MemStore) CountNodes(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), nil
}

// IDs returns stored ids in insertion order.
func (s *MemStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Compile-time interface check
var _ Storer = (*MemStore)(nil)
