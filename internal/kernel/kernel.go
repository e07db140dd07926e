// Package kernel boots an execution context: it seeds the builtin nodes,
// replays durable storage over them and wires the loader to the
// persistence adapter. Hosts talk to the graph through a Kernel.
package kernel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kittclouds/nodegraph/internal/builtins"
	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/notify"
	"github.com/kittclouds/nodegraph/internal/persist"
	"github.com/kittclouds/nodegraph/internal/store"
	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// Options configures Boot.
type Options struct {
	// Durable is required.
	Durable store.Storer
	// Channel may be nil for a context that does not sync.
	Channel notify.Channel
	// Origin names this context in notifications; random when empty.
	Origin string
	// DefaultApp is launched when the requested id is not in the graph.
	DefaultApp string
	Logger     *slog.Logger
}

// Kernel is one booted execution context.
type Kernel struct {
	Graph    *graph.Graph
	Loader   *resource.Loader
	Adapter  *persist.Adapter
	Registry *resource.Registry

	defaultApp string
	logger     *slog.Logger
}

// Boot seeds builtins, then replays every durable record, then returns a
// ready kernel. Durable records win over builtins with the same id.
func Boot(ctx context.Context, opts Options) (*Kernel, error) {
	if opts.Durable == nil {
		return nil, fmt.Errorf("boot: no durable store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultApp := opts.DefaultApp
	if defaultApp == "" {
		defaultApp = config.DefaultApp
	}

	g := graph.New()
	seeded, err := builtins.Seed(g)
	if err != nil {
		return nil, err
	}

	adapterOpts := []persist.Option{persist.WithLogger(logger)}
	if opts.Origin != "" {
		adapterOpts = append(adapterOpts, persist.WithOrigin(opts.Origin))
	}
	adapter := persist.New(g, opts.Durable, opts.Channel, adapterOpts...)

	replayed, err := adapter.Replay(ctx)
	if err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}

	reg := builtins.NewRegistry()
	k := &Kernel{
		Graph:      g,
		Loader:     resource.NewLoader(g, reg, resource.WithSaver(adapter), resource.WithLogger(logger)),
		Adapter:    adapter,
		Registry:   reg,
		defaultApp: defaultApp,
		logger:     logger,
	}
	logger.Info("kernel ready", "builtins", seeded, "replayed", replayed, "origin", adapter.Origin())
	return k, nil
}

// Load instantiates the node stored under id.
func (k *Kernel) Load(ctx context.Context, id string) (*resource.Resource, error) {
	return k.Loader.Load(ctx, id)
}

// Save persists nodes through the adapter.
func (k *Kernel) Save(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	return k.Adapter.Save(ctx, nodes)
}

// Run applies changes made by other contexts until ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	return k.Adapter.Run(ctx)
}

// DefaultApp returns the fallback application id.
func (k *Kernel) DefaultApp() string {
	return k.defaultApp
}

// Resolve picks the application to launch: id when it is in the graph,
// otherwise the default application.
func (k *Kernel) Resolve(id string) string {
	if id != "" && k.Graph.Store.Has(id) {
		return id
	}
	return k.defaultApp
}

// Launched is a started application.
type Launched struct {
	Resource *resource.Resource
	// Result is what init returned, nil when the resource has no init.
	Result any
}

// Launch resolves id, loads it and calls its init method when it has one.
func (k *Kernel) Launch(ctx context.Context, id string) (*Launched, error) {
	target := k.Resolve(id)
	if target != id && id != "" {
		k.logger.Warn("unknown application, using default", "requested", id, "default", target)
	}

	res, err := k.Loader.Load(ctx, target)
	if err != nil {
		return nil, err
	}
	launched := &Launched{Resource: res}
	if res.Has("init") {
		launched.Result, err = res.Call(ctx, "init")
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", target, err)
		}
	}
	k.logger.Debug("launched", "id", target)
	return launched, nil
}
