package builtins

import (
	"context"
	"fmt"

	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// graph() -> Library
func commandGraph(ctx context.Context, c *resource.Construction, args ...any) (any, error) {
	return c.Loader.Load(ctx, graph.GraphLibraryID)
}

// nodes(graph Library, type String) -> Array
func commandNodes(ctx context.Context, c *resource.Construction, args ...any) (any, error) {
	lib, err := arg[*resource.Resource](args, 0, "graph")
	if err != nil {
		return nil, err
	}
	typ, err := arg[string](args, 1, "type")
	if err != nil {
		return nil, err
	}
	return lib.Call(ctx, "loadNodesOfType", typ)
}

// filter(nodes Array, predicate Command) -> Array
//
// The predicate's run is called with each resource and must return a bool.
func commandFilter(ctx context.Context, c *resource.Construction, args ...any) (any, error) {
	nodes, err := arg[[]*resource.Resource](args, 0, "nodes")
	if err != nil {
		return nil, err
	}
	predicate, err := arg[*resource.Resource](args, 1, "predicate")
	if err != nil {
		return nil, err
	}

	out := []*resource.Resource{}
	for _, n := range nodes {
		v, err := predicate.Call(ctx, "run", n)
		if err != nil {
			return nil, err
		}
		keep, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: predicate %s returned %T", ErrBadArgument, predicate.ID, v)
		}
		if keep {
			out = append(out, n)
		}
	}
	return out, nil
}
