package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"sync"

	"github.com/hack-pad/hackpadfs"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// FSStore keeps one JSON file per node on a hackpadfs filesystem, which is
// IndexedDB in the browser and an in-memory FS in tests.
//
// Layout under Dir:
//
//	nodes/<escaped id>.json
//	types/<escaped type>/<escaped id>   (empty marker, the type index)
//
// Storage order is key order, as with an IndexedDB cursor.
type FSStore struct {
	FS  hackpadfs.FS
	Dir string
	mu  sync.RWMutex
}

// NewFSStore creates the store layout under dir.
func NewFSStore(fs hackpadfs.FS, dir string) (*FSStore, error) {
	s := &FSStore{FS: fs, Dir: dir}
	for _, sub := range []string{s.nodesDir(), s.typesDir()} {
		if err := hackpadfs.MkdirAll(fs, sub, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}
	return s, nil
}

// Close is a no-op; the filesystem belongs to the caller.
func (s *FSStore) Close() error {
	return nil
}

func (s *FSStore) nodesDir() string { return path.Join(s.Dir, "nodes") }
func (s *FSStore) typesDir() string { return path.Join(s.Dir, "types") }

func (s *FSStore) nodePath(id string) string {
	return path.Join(s.nodesDir(), url.PathEscape(id)+".json")
}

func (s *FSStore) markerPath(typ, id string) string {
	return path.Join(s.typesDir(), url.PathEscape(typ), url.PathEscape(id))
}

func (s *FSStore) UpsertNode(ctx context.Context, node *graph.Node) error {
	payload, err := ToJSON(node)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", node.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.read(node.ID)
	if err != nil {
		return err
	}

	if err := hackpadfs.WriteFullFile(s.FS, s.nodePath(node.ID), payload, 0o644); err != nil {
		return fmt.Errorf("failed to write node %s: %w", node.ID, err)
	}

	if previous != nil && previous.Type != node.Type {
		err := hackpadfs.Remove(s.FS, s.markerPath(previous.Type, node.ID))
		if err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
			return fmt.Errorf("failed to drop type marker for %s: %w", node.ID, err)
		}
	}
	typeDir := path.Join(s.typesDir(), url.PathEscape(node.Type))
	if err := hackpadfs.MkdirAll(s.FS, typeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create type index %s: %w", node.Type, err)
	}
	if err := hackpadfs.WriteFullFile(s.FS, s.markerPath(node.Type, node.ID), nil, 0o644); err != nil {
		return fmt.Errorf("failed to write type marker for %s: %w", node.ID, err)
	}
	return nil
}

func (s *FSStore) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

func (s *FSStore) read(id string) (*graph.Node, error) {
	content, err := hackpadfs.ReadFile(s.FS, s.nodePath(id))
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read node %s: %w", id, err)
	}

	node, err := FromJSON(content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode node %s: %w", id, err)
	}
	return node, nil
}

// ListNodes returns every node in key order.
func (s *FSStore) ListNodes(ctx context.Context) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listIDs(s.nodesDir(), ".json")
	if err != nil {
		return nil, err
	}
	return s.readAll(ids)
}

// ListNodesByType reads the type index rather than scanning every record.
func (s *FSStore) ListNodesByType(ctx context.Context, typ string) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listIDs(path.Join(s.typesDir(), url.PathEscape(typ)), "")
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.readAll(ids)
}

func (s *FSStore) CountNodes(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.listIDs(s.nodesDir(), ".json")
	return len(ids), err
}

func (s *FSStore) listIDs(dir, suffix string) ([]string, error) {
	entries, err := hackpadfs.ReadDir(s.FS, dir)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) < len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		id, err := url.PathUnescape(name[:len(name)-len(suffix)])
		if err != nil {
			return nil, fmt.Errorf("bad node file name %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *FSStore) readAll(ids []string) ([]*graph.Node, error) {
	nodes := make([]*graph.Node, 0, len(ids))
	for _, id := range ids {
		node, err := s.read(id)
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// Compile-time interface check
var _ Storer = (*FSStore)(nil)
