// Package store provides durable persistence for graph nodes.
// Each node is kept as a self-describing JSON record keyed by id, with a
// secondary index on type.
package store

import (
	"context"
	"encoding/json"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// Storer defines the interface for durable node persistence.
// GetNode returns (nil, nil) for an id that was never stored.
type Storer interface {
	UpsertNode(ctx context.Context, node *graph.Node) error
	GetNode(ctx context.Context, id string) (*graph.Node, error)
	// ListNodes returns every current record in storage order.
	ListNodes(ctx context.Context) ([]*graph.Node, error)
	ListNodesByType(ctx context.Context, typ string) ([]*graph.Node, error)
	CountNodes(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
}

// Version is one historical revision of a node record.
type Version struct {
	Version   int         `json:"version"`
	ValidFrom int64       `json:"validFrom"`
	ValidTo   *int64      `json:"validTo,omitempty"`
	IsCurrent bool        `json:"isCurrent"`
	Node      *graph.Node `json:"node"`
}

// VersionedStorer is a Storer that keeps every revision of a record.
type VersionedStorer interface {
	Storer
	ListNodeVersions(ctx context.Context, id string) ([]*Version, error)
}

// ToJSON encodes a node record.
func ToJSON(node *graph.Node) ([]byte, error) {
	return json.Marshal(node)
}

// FromJSON decodes a node record.
func FromJSON(data []byte) (*graph.Node, error) {
	var node graph.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if node.Links == nil {
		node.Links = []string{}
	}
	return &node, nil
}
