package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

var (
	// ErrCycleDetected reports an import graph that loops back on a node
	// still being loaded.
	ErrCycleDetected = errors.New("import cycle detected")

	// ErrUnknownHandler reports a type whose construction handler is not registered.
	ErrUnknownHandler = errors.New("unknown construction handler")

	// ErrConstruction wraps every error returned by a construction handler.
	ErrConstruction = errors.New("construction failed")

	// ErrNoMethod reports a call to a method the Resource does not carry.
	ErrNoMethod = errors.New("no such method")

	// ErrNoSaver reports a save through a loader configured without persistence.
	ErrNoSaver = errors.New("no saver configured")
)

// Option configures a Loader.
type Option func(*Loader)

// WithSaver lets constructed libraries persist nodes.
func WithSaver(s Saver) Option {
	return func(l *Loader) { l.saver = s }
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// Loader builds Resources from the nodes of one Graph.
type Loader struct {
	graph    *graph.Graph
	registry *Registry
	saver    Saver
	logger   *slog.Logger
}

// NewLoader creates a loader over g dispatching construction through reg.
func NewLoader(g *graph.Graph, reg *Registry, opts ...Option) *Loader {
	l := &Loader{
		graph:    g,
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Graph returns the graph the loader reads from.
func (l *Loader) Graph() *graph.Graph {
	return l.graph
}

// Save persists nodes through the configured Saver.
func (l *Loader) Save(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	if l.saver == nil {
		return nil, ErrNoSaver
	}
	return l.saver.Save(ctx, nodes)
}

// Load instantiates the node stored at id.
func (l *Loader) Load(ctx context.Context, id string) (*Resource, error) {
	node, err := l.graph.Store.Get(id)
	if err != nil {
		return nil, err
	}
	return l.LoadNode(ctx, node)
}

// LoadNode instantiates node, which need not be stored itself; its imports
// and type must be.
//
// Within one call every distinct node is constructed once, so a dependency
// reached along several import paths yields a single shared Resource.
// Nothing is cached across calls.
func (l *Loader) LoadNode(ctx context.Context, node *graph.Node) (*Resource, error) {
	st := &loadState{
		inProgress: make(map[string]bool),
		done:       make(map[string]*Resource),
	}
	return l.load(ctx, st, node)
}

type loadState struct {
	inProgress map[string]bool
	done       map[string]*Resource
	path       []string
}

func (l *Loader) load(ctx context.Context, st *loadState, node *graph.Node) (*Resource, error) {
	if res, ok := st.done[node.ID]; ok {
		return res, nil
	}
	if st.inProgress[node.ID] {
		cycle := append(slices.Clone(st.path), node.ID)
		return nil, fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}
	st.inProgress[node.ID] = true
	st.path = append(st.path, node.ID)
	defer func() {
		delete(st.inProgress, node.ID)
		st.path = st.path[:len(st.path)-1]
	}()

	imports := make(Imports, len(node.Imports))
	for _, name := range slices.Sorted(maps.Keys(node.Imports)) {
		depID := node.Imports[name]
		dep, err := l.graph.Store.Get(depID)
		if err != nil {
			return nil, fmt.Errorf("load %s: import %s: %w", node.ID, name, err)
		}
		res, err := l.load(ctx, st, dep)
		if err != nil {
			return nil, err
		}
		imports[name] = res
	}

	res := newResource(node, imports)

	typ, err := l.graph.Store.Get(node.Type)
	if err != nil {
		return nil, fmt.Errorf("load %s: type: %w", node.ID, err)
	}
	if err := l.construct(ctx, res, imports, typ); err != nil {
		return nil, err
	}

	// the Graph library is the one Resource allowed to read and write the whole graph
	if node.ID == graph.GraphLibraryID {
		res.Nodes = l.graph.Store
		res.Backlinks = l.graph.Backlinks
	}

	st.done[node.ID] = res
	return res, nil
}

func (l *Loader) construct(ctx context.Context, res *Resource, imports Imports, typ *graph.Node) error {
	strategy := typ.Construct
	if strategy == nil || strategy.Kind == "" || strategy.Kind == graph.ConstructIdentity {
		return nil
	}
	if strategy.Kind != graph.ConstructHandler {
		return fmt.Errorf("%w: %s declares strategy %q", ErrUnknownHandler, typ.ID, strategy.Kind)
	}

	h, ok := l.registry.Lookup(strategy.Handler)
	if !ok {
		return fmt.Errorf("%w: %q for type %s", ErrUnknownHandler, strategy.Handler, typ.ID)
	}

	l.logger.Debug("construct", "id", res.ID, "type", typ.ID, "handler", strategy.Handler)
	if err := h(&Construction{
		Ctx:      ctx,
		Resource: res,
		Imports:  imports,
		Type:     typ,
		Loader:   l,
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConstruction, res.ID, err)
	}
	return nil
}
