package kernel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodegraph/internal/builtins"
	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/logs"
	"github.com/kittclouds/nodegraph/internal/notify"
	"github.com/kittclouds/nodegraph/internal/store"
	"github.com/kittclouds/nodegraph/pkg/graph"
)

func boot(t *testing.T, durable store.Storer) *Kernel {
	t.Helper()
	k, err := Boot(context.Background(), Options{Durable: durable, Logger: logs.Discard()})
	require.NoError(t, err)
	return k
}

func TestBootSeedsBuiltins(t *testing.T) {
	k := boot(t, store.NewMemStore())
	table, err := builtins.Table()
	require.NoError(t, err)
	assert.Equal(t, len(table), k.Graph.Store.Len())
	assert.True(t, k.Graph.Store.Has(graph.GraphLibraryID))
}

func TestBootRequiresStore(t *testing.T) {
	_, err := Boot(context.Background(), Options{})
	assert.Error(t, err)
}

func TestDurableRecordsWinOverBuiltins(t *testing.T) {
	ctx := context.Background()
	durable := store.NewMemStore()
	require.NoError(t, durable.UpsertNode(ctx, &graph.Node{
		ID:      "preload://launcher",
		Type:    graph.TypeApplication,
		Links:   []string{},
		Title:   "My Launcher",
		Init:    "launcher",
		Imports: map[string]string{"graph": graph.GraphLibraryID},
	}))
	require.NoError(t, durable.UpsertNode(ctx, &graph.Node{
		ID: "user://toot", Type: builtins.TypeToot, Links: []string{"preload://launcher"},
	}))

	k := boot(t, durable)
	launcher, err := k.Graph.Get("preload://launcher")
	require.NoError(t, err)
	assert.Equal(t, "My Launcher", launcher.Title)
	assert.Equal(t, []string{"user://toot"}, k.Graph.Backlinks.Get("preload://launcher"))
}

func TestSaveReplacesWholeRecord(t *testing.T) {
	ctx := context.Background()
	k := boot(t, store.NewMemStore())

	_, err := k.Save(ctx, []*graph.Node{{ID: "n1", Type: builtins.TypeToot, Props: map[string]any{"description": "first", "extra": true}}})
	require.NoError(t, err)
	_, err = k.Save(ctx, []*graph.Node{{ID: "n1", Type: builtins.TypeToot, Props: map[string]any{"description": "second"}}})
	require.NoError(t, err)

	got, err := k.Graph.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"description": "second"}, got.Props)
}

func TestLaunchRequested(t *testing.T) {
	k := boot(t, store.NewMemStore())
	launched, err := k.Launch(context.Background(), "preload://node-viewer")
	require.NoError(t, err)
	assert.Equal(t, "preload://node-viewer", launched.Resource.ID)
	assert.IsType(t, []*builtins.NodeView{}, launched.Result)
}

func TestLaunchFallsBackToDefault(t *testing.T) {
	k := boot(t, store.NewMemStore())
	for _, id := range []string{"", "user://nowhere"} {
		launched, err := k.Launch(context.Background(), id)
		require.NoError(t, err, id)
		assert.Equal(t, config.DefaultApp, launched.Resource.ID)

		apps, ok := launched.Result.([]builtins.AppEntry)
		require.True(t, ok)
		assert.NotEmpty(t, apps)
	}
}

func TestLaunchWithoutInit(t *testing.T) {
	k := boot(t, store.NewMemStore())
	launched, err := k.Launch(context.Background(), "builtin://String")
	require.NoError(t, err)
	assert.Nil(t, launched.Result)
}

func TestCustomDefaultApp(t *testing.T) {
	k, err := Boot(context.Background(), Options{
		Durable:    store.NewMemStore(),
		DefaultApp: "preload://tooter",
		Logger:     logs.Discard(),
	})
	require.NoError(t, err)
	assert.Equal(t, "preload://tooter", k.Resolve("user://missing"))
	assert.Equal(t, "preload://launcher", k.Resolve("preload://launcher"))
}

func TestTwoContextsSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	durable := store.NewMemStore()
	hub := notify.NewHub(8)
	defer hub.Close()

	first, err := Boot(ctx, Options{Durable: durable, Channel: hub, Origin: "first", Logger: logs.Discard()})
	require.NoError(t, err)
	second, err := Boot(ctx, Options{Durable: durable, Channel: hub, Origin: "second", Logger: logs.Discard()})
	require.NoError(t, err)
	go second.Run(ctx)

	tooter, err := first.Load(ctx, "preload://tooter")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := tooter.Call(ctx, "publish", "hello from the first tab")
		require.NoError(t, err)
		return second.Graph.Store.Has(v.(*graph.Node).ID)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []config.Store{
		{Backend: config.BackendMemory},
		{Backend: config.BackendSQLite, DSN: filepath.Join(dir, "nodes.db")},
		{Backend: config.BackendFS, Dir: filepath.Join(dir, "fs")},
	} {
		t.Run(backend.Backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store = backend
			cfg.Notify.Dir = filepath.Join(dir, "notify-"+backend.Backend)

			k, closer, err := Open(ctx, cfg, logs.Discard())
			require.NoError(t, err)

			saved, err := k.Save(ctx, []*graph.Node{{Type: builtins.TypeToot, Props: map[string]any{"description": "kept"}}})
			require.NoError(t, err)
			require.NoError(t, closer.Close())

			if backend.Backend == config.BackendMemory {
				return
			}
			reopened, closer, err := Open(ctx, cfg, logs.Discard())
			require.NoError(t, err)
			defer closer.Close()

			got, err := reopened.Graph.Get(saved[0].ID)
			require.NoError(t, err)
			assert.Equal(t, "kept", got.PropString("description"))
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := OpenStore(config.Store{Backend: "tape"})
	assert.Error(t, err)
}
