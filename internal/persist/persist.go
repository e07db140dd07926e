// Package persist keeps the live graph and the durable store in step:
// saves write through to storage, startup replays storage into the graph,
// and change notifications from other contexts are pulled back in.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kittclouds/nodegraph/internal/notify"
	"github.com/kittclouds/nodegraph/internal/store"
	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// ErrInvalidNode reports a node that cannot be saved.
var ErrInvalidNode = errors.New("invalid node")

// Adapter is the persistence adapter of one execution context.
type Adapter struct {
	graph   *graph.Graph
	durable store.Storer
	channel notify.Channel
	origin  string
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithOrigin names this context in outgoing notifications.
// Defaults to a random UUID.
func WithOrigin(origin string) Option {
	return func(a *Adapter) { a.origin = origin }
}

// WithClock overrides the notification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates an adapter. channel may be nil for a context that neither
// publishes nor listens.
func New(g *graph.Graph, durable store.Storer, channel notify.Channel, opts ...Option) *Adapter {
	a := &Adapter{
		graph:   g,
		durable: durable,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  slog.Default(),
		now:     time.Now,
		newID:   func() string { return graph.NamespaceUser + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Origin returns the name this context publishes under.
func (a *Adapter) Origin() string {
	return a.origin
}

// Durable returns the backing store.
func (a *Adapter) Durable() store.Storer {
	return a.durable
}

// NewID returns a fresh user-namespace id.
func (a *Adapter) NewID() string {
	return a.newID()
}

// Save assigns ids to id-less nodes, then for each node in order writes it
// to the durable store, inserts it into the graph and publishes a
// notification. Every node is validated before anything is written.
// The returned nodes carry their final ids.
func (a *Adapter) Save(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	prepared := make([]*graph.Node, 0, len(nodes))
	for i, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("%w: nil node at %d", ErrInvalidNode, i)
		}
		n := node.Clone()
		if n.ID == "" {
			n.ID = a.newID()
		}
		if n.Type == "" {
			return nil, fmt.Errorf("%w: %s has no type", ErrInvalidNode, n.ID)
		}
		if n.Links == nil {
			n.Links = []string{}
		}
		prepared = append(prepared, n)
	}

	for _, n := range prepared {
		if err := a.durable.UpsertNode(ctx, n); err != nil {
			return nil, fmt.Errorf("failed to persist %s: %w", n.ID, err)
		}
		if err := a.graph.Insert(n); err != nil {
			return nil, err
		}
		if err := a.publish(ctx, n.ID); err != nil {
			return nil, err
		}
	}

	a.logger.Debug("saved nodes", "count", len(prepared), "origin", a.origin)
	return prepared, nil
}

func (a *Adapter) publish(ctx context.Context, id string) error {
	if a.channel == nil {
		return nil
	}
	n := notify.Notification{ID: id, Timestamp: a.now().UnixMilli(), Origin: a.origin}
	if err := a.channel.Publish(ctx, n); err != nil {
		return fmt.Errorf("failed to notify change of %s: %w", id, err)
	}
	return nil
}

// Replay inserts every durable record into the graph in storage order.
// It returns the number of records replayed.
func (a *Adapter) Replay(ctx context.Context) (int, error) {
	nodes, err := a.durable.ListNodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read durable nodes: %w", err)
	}
	for _, node := range nodes {
		if err := a.graph.Insert(node); err != nil {
			return 0, fmt.Errorf("failed to replay %s: %w", node.ID, err)
		}
	}
	a.logger.Info("replayed durable nodes", "count", len(nodes))
	return len(nodes), nil
}

// Handle applies one notification: it re-reads the id from durable storage
// and inserts whatever is stored now. Notifications from this context are
// ignored.
func (a *Adapter) Handle(ctx context.Context, n notify.Notification) error {
	if n.Origin == a.origin {
		return nil
	}
	node, err := a.durable.GetNode(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read %s: %w", n.ID, err)
	}
	if node == nil {
		return fmt.Errorf("notified %s: %w", n.ID, graph.ErrNotFound)
	}
	if err := a.graph.Insert(node); err != nil {
		return err
	}
	a.logger.Debug("synced node", "id", n.ID, "origin", n.Origin)
	return nil
}

// Run applies notifications from other contexts until ctx is done.
// Failures are logged and the loop continues.
func (a *Adapter) Run(ctx context.Context) error {
	if a.channel == nil {
		<-ctx.Done()
		return nil
	}
	stream, err := a.channel.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	for n := range stream {
		if err := a.Handle(ctx, n); err != nil {
			a.logger.Error("sync failed", "id", n.ID, "origin", n.Origin, "error", err)
		}
	}
	return nil
}

var _ resource.Saver = (*Adapter)(nil)
