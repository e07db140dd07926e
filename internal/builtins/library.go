package builtins

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/mentions"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// =============================================================================
// Graph library
// =============================================================================

// GraphLibrary reads and writes the whole graph. Its live references are
// injected by the loader after construction, so every method checks for them
// at call time; a copy of the library under another id has no access.
type GraphLibrary struct {
	res    *resource.Resource
	loader *resource.Loader
}

func initGraph(c *resource.Construction) (*Exports, error) {
	lib := &GraphLibrary{res: c.Resource, loader: c.Loader}
	return &Exports{
		Members: map[string]any{"library": lib},
		Methods: map[string]resource.Method{
			"getNodes": func(ctx context.Context, args ...any) (any, error) {
				return lib.Nodes()
			},
			"loadAllNodes": func(ctx context.Context, args ...any) (any, error) {
				return lib.LoadAllNodes(ctx)
			},
			"getNode": func(ctx context.Context, args ...any) (any, error) {
				id, err := arg[string](args, 0, "id")
				if err != nil {
					return nil, err
				}
				return lib.Node(id)
			},
			"loadNodesOfType": func(ctx context.Context, args ...any) (any, error) {
				typ, err := arg[string](args, 0, "type")
				if err != nil {
					return nil, err
				}
				return lib.LoadNodesOfType(ctx, typ)
			},
			"getTypeNodes": func(ctx context.Context, args ...any) (any, error) {
				return lib.TypeNodes(ctx)
			},
			"getBacklinks": func(ctx context.Context, args ...any) (any, error) {
				return lib.Backlinks()
			},
			"getBacklinksFor": func(ctx context.Context, args ...any) (any, error) {
				id, err := arg[string](args, 0, "id")
				if err != nil {
					return nil, err
				}
				return lib.BacklinksFor(id)
			},
			"saveNodes": func(ctx context.Context, args ...any) (any, error) {
				nodes, err := arg[[]*graph.Node](args, 0, "nodes")
				if err != nil {
					return nil, err
				}
				return lib.SaveNodes(ctx, nodes)
			},
			"putNodes": func(ctx context.Context, args ...any) (any, error) {
				nodes, err := arg[[]*graph.Node](args, 0, "nodes")
				if err != nil {
					return nil, err
				}
				return lib.PutNodes(ctx, nodes)
			},
		},
	}, nil
}

// GraphOf returns the typed library behind a loaded Graph Resource.
func GraphOf(res *resource.Resource) (*GraphLibrary, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: graph import missing", ErrBadArgument)
	}
	lib, ok := res.Members["library"].(*GraphLibrary)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a graph library", ErrBadArgument, res.ID)
	}
	return lib, nil
}

func (l *GraphLibrary) store() (*graph.Store, error) {
	if l.res.Nodes == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPrivileged, l.res.ID)
	}
	return l.res.Nodes, nil
}

// Nodes returns a snapshot of every node keyed by id.
func (l *GraphLibrary) Nodes() (map[string]*graph.Node, error) {
	s, err := l.store()
	if err != nil {
		return nil, err
	}
	return s.Nodes(), nil
}

// Node returns one node.
func (l *GraphLibrary) Node(id string) (*graph.Node, error) {
	s, err := l.store()
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// LoadAllNodes loads every node, ordered by id.
func (l *GraphLibrary) LoadAllNodes(ctx context.Context) ([]*resource.Resource, error) {
	s, err := l.store()
	if err != nil {
		return nil, err
	}
	var out []*resource.Resource
	for _, id := range s.IDs() {
		res, err := l.loader.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// LoadNodesOfType loads every node whose type is typ, ordered by id.
func (l *GraphLibrary) LoadNodesOfType(ctx context.Context, typ string) ([]*resource.Resource, error) {
	s, err := l.store()
	if err != nil {
		return nil, err
	}
	out := []*resource.Resource{}
	for _, node := range s.OfType(typ) {
		res, err := l.loader.LoadNode(ctx, node)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// TypeNodes loads every type declaration, keyed by id.
func (l *GraphLibrary) TypeNodes(ctx context.Context) (map[string]*resource.Resource, error) {
	types, err := l.LoadNodesOfType(ctx, graph.TypeType)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*resource.Resource, len(types))
	for _, t := range types {
		out[t.ID] = t
	}
	return out, nil
}

// Backlinks returns a snapshot of the whole backlink index.
func (l *GraphLibrary) Backlinks() (map[string][]string, error) {
	if l.res.Backlinks == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPrivileged, l.res.ID)
	}
	return l.res.Backlinks.All(), nil
}

// BacklinksFor returns the ids linking to id.
func (l *GraphLibrary) BacklinksFor(id string) ([]string, error) {
	if l.res.Backlinks == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPrivileged, l.res.ID)
	}
	return l.res.Backlinks.Get(id), nil
}

// SaveNodes gives every node a fresh user id and saves them.
func (l *GraphLibrary) SaveNodes(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	fresh := make([]*graph.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("%w: nil node", ErrBadArgument)
		}
		c := n.Clone()
		c.ID = graph.NamespaceUser + uuid.NewString()
		fresh = append(fresh, c)
	}
	return l.PutNodes(ctx, fresh)
}

// PutNodes saves nodes under the ids they carry, replacing existing records.
func (l *GraphLibrary) PutNodes(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	if _, err := l.store(); err != nil {
		return nil, err
	}
	return l.loader.Save(ctx, nodes)
}

// =============================================================================
// Mentions library
// =============================================================================

// MentionsLibrary resolves titles and wikilinks in text to node ids,
// against the graph as it is at call time.
type MentionsLibrary struct {
	graph *GraphLibrary
}

func initMentions(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	lib := &MentionsLibrary{graph: g}
	return &Exports{
		Members: map[string]any{"library": lib},
		Methods: map[string]resource.Method{
			"scan": func(ctx context.Context, args ...any) (any, error) {
				text, err := arg[string](args, 0, "text")
				if err != nil {
					return nil, err
				}
				return lib.Scan(text)
			},
			"links": func(ctx context.Context, args ...any) (any, error) {
				text, err := arg[string](args, 0, "text")
				if err != nil {
					return nil, err
				}
				return lib.Links(text)
			},
		},
	}, nil
}

// MentionsOf returns the typed library behind a loaded Mentions Resource.
func MentionsOf(res *resource.Resource) (*MentionsLibrary, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: mentions import missing", ErrBadArgument)
	}
	lib, ok := res.Members["library"].(*MentionsLibrary)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a mentions library", ErrBadArgument, res.ID)
	}
	return lib, nil
}

func (m *MentionsLibrary) dictionary() (*mentions.Dictionary, error) {
	nodes, err := m.graph.Nodes()
	if err != nil {
		return nil, err
	}
	ordered := make([]*graph.Node, 0, len(nodes))
	for _, id := range slices.Sorted(maps.Keys(nodes)) {
		ordered = append(ordered, nodes[id])
	}
	return mentions.Compile(mentions.EntriesFor(ordered)), nil
}

// Scan returns every mention in text.
func (m *MentionsLibrary) Scan(text string) ([]mentions.Match, error) {
	d, err := m.dictionary()
	if err != nil {
		return nil, err
	}
	return d.Scan(text), nil
}

// Links returns the ids mentioned in text, excluding the given ids.
func (m *MentionsLibrary) Links(text string, exclude ...string) ([]string, error) {
	d, err := m.dictionary()
	if err != nil {
		return nil, err
	}
	return d.Links(text, exclude...), nil
}
