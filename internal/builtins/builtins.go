// Package builtins supplies the bootstrap node set: the base type system,
// the core libraries, sample applications and commands. It also links the
// construction handlers those nodes' types refer to.
package builtins

import (
	"embed"
	"fmt"
	"maps"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

//go:embed builtins.yaml preloads.yaml
var tables embed.FS

var parsed = sync.OnceValues(parse)

func decodeTable(name string) (map[string]*graph.Node, error) {
	data, err := tables.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var table map[string]*graph.Node
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return table, nil
}

func parse() (map[string]*graph.Node, error) {
	table, err := decodeTable("builtins.yaml")
	if err != nil {
		return nil, err
	}
	preloads, err := decodeTable("preloads.yaml")
	if err != nil {
		return nil, err
	}
	maps.Copy(table, preloads)

	for id, node := range table {
		if node == nil {
			return nil, fmt.Errorf("empty builtin entry %s", id)
		}
		Prepare(id, node)
	}
	return table, nil
}

// Prepare fills in the fields every table node needs: the id from its key
// and empty links. Type declarations also get default params, and links to
// every node their types import, deduplicated, in alias order.
func Prepare(id string, node *graph.Node) {
	node.ID = id
	node.Links = []string{}

	if node.Kind() == graph.KindTypeDecl {
		if node.Params == nil {
			node.Params = []string{}
		}
		node.Links = append(node.Links, node.ImportTargets()...)
	}
}

// Table returns a fresh copy of the bootstrap nodes keyed by id.
func Table() (map[string]*graph.Node, error) {
	table, err := parsed()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*graph.Node, len(table))
	for id, node := range table {
		out[id] = node.Clone()
	}
	return out, nil
}

// Nodes returns the bootstrap nodes ordered by id.
func Nodes() ([]*graph.Node, error) {
	table, err := Table()
	if err != nil {
		return nil, err
	}
	nodes := make([]*graph.Node, 0, len(table))
	for _, id := range slices.Sorted(maps.Keys(table)) {
		nodes = append(nodes, table[id])
	}
	return nodes, nil
}

// Seed inserts the bootstrap nodes into g and returns how many were inserted.
func Seed(g *graph.Graph) (int, error) {
	nodes, err := Nodes()
	if err != nil {
		return 0, err
	}
	if err := g.InsertAll(nodes); err != nil {
		return 0, fmt.Errorf("failed to seed builtins: %w", err)
	}
	return len(nodes), nil
}
