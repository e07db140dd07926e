//go:build !js

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// =============================================================================
// Store Factory for Testing All Implementations
// =============================================================================

// storeFactory creates a store for testing.
// We run the same suite against MemStore, SQLiteStore and FSStore.
type storeFactory func() (Storer, error)

func memStoreFactory() (Storer, error) {
	return NewMemStore(), nil
}

func sqliteStoreFactory() (Storer, error) {
	return NewSQLiteStore()
}

func fsStoreFactory() (Storer, error) {
	fs, err := mem.NewFS()
	if err != nil {
		return nil, err
	}
	return NewFSStore(fs, "nodegraph")
}

// runTestsForAllStores runs a test function against every store implementation.
func runTestsForAllStores(t *testing.T, testName string, testFn func(t *testing.T, store Storer)) {
	factories := map[string]storeFactory{
		"MemStore":    memStoreFactory,
		"SQLiteStore": sqliteStoreFactory,
		"FSStore":     fsStoreFactory,
	}

	for name, factory := range factories {
		t.Run(name+"/"+testName, func(t *testing.T) {
			store, err := factory()
			require.NoError(t, err, "Failed to create store")
			defer store.Close()
			testFn(t, store)
		})
	}
}

func toot(id, text string, links ...string) *graph.Node {
	if links == nil {
		links = []string{}
	}
	return &graph.Node{
		ID:    id,
		Type:  "preload://Toot",
		Links: links,
		Props: map[string]any{"description": text},
	}
}

// =============================================================================
// Node CRUD Tests
// =============================================================================

func TestNodeUpsertAndGet(t *testing.T) {
	runTestsForAllStores(t, "UpsertAndGet", func(t *testing.T, store Storer) {
		ctx := context.Background()
		node := toot("user://1", "hello", "user://0")
		node.Imports = map[string]string{"graph": graph.GraphLibraryID}

		require.NoError(t, store.UpsertNode(ctx, node))

		retrieved, err := store.GetNode(ctx, "user://1")
		require.NoError(t, err)
		require.NotNil(t, retrieved)
		assert.Equal(t, node, retrieved)

		// Update replaces the whole record
		updated := &graph.Node{ID: "user://1", Type: "preload://Toot", Links: []string{}}
		require.NoError(t, store.UpsertNode(ctx, updated))

		retrieved, err = store.GetNode(ctx, "user://1")
		require.NoError(t, err)
		assert.Equal(t, updated, retrieved)
		assert.Nil(t, retrieved.Props)
	})
}

func TestNodeGetNotFound(t *testing.T) {
	runTestsForAllStores(t, "GetNotFound", func(t *testing.T, store Storer) {
		node, err := store.GetNode(context.Background(), "nonexistent")
		require.NoError(t, err, "GetNode for nonexistent should not error")
		assert.Nil(t, node, "Should return nil for nonexistent node")
	})
}

func TestNodeListOrder(t *testing.T) {
	runTestsForAllStores(t, "ListOrder", func(t *testing.T, store Storer) {
		ctx := context.Background()
		for _, id := range []string{"user://a", "user://b", "user://c"} {
			require.NoError(t, store.UpsertNode(ctx, toot(id, id)))
		}
		// rewriting an existing id does not move it
		require.NoError(t, store.UpsertNode(ctx, toot("user://a", "again")))

		nodes, err := store.ListNodes(ctx)
		require.NoError(t, err)
		require.Len(t, nodes, 3)
		assert.Equal(t, "user://a", nodes[0].ID)
		assert.Equal(t, "again", nodes[0].PropString("description"))
		assert.Equal(t, "user://b", nodes[1].ID)
		assert.Equal(t, "user://c", nodes[2].ID)
	})
}

func TestNodeListByType(t *testing.T) {
	runTestsForAllStores(t, "ListByType", func(t *testing.T, store Storer) {
		ctx := context.Background()
		require.NoError(t, store.UpsertNode(ctx, toot("user://t1", "one")))
		require.NoError(t, store.UpsertNode(ctx, toot("user://t2", "two")))
		require.NoError(t, store.UpsertNode(ctx, &graph.Node{ID: "user://app", Type: graph.TypeApplication, Links: []string{}}))

		toots, err := store.ListNodesByType(ctx, "preload://Toot")
		require.NoError(t, err)
		assert.Len(t, toots, 2)

		apps, err := store.ListNodesByType(ctx, graph.TypeApplication)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "user://app", apps[0].ID)

		// retyping moves the record between index entries
		require.NoError(t, store.UpsertNode(ctx, &graph.Node{ID: "user://t2", Type: graph.TypeApplication, Links: []string{}}))
		toots, err = store.ListNodesByType(ctx, "preload://Toot")
		require.NoError(t, err)
		assert.Len(t, toots, 1)

		none, err := store.ListNodesByType(ctx, "nonexistent-type")
		require.NoError(t, err)
		assert.Len(t, none, 0)
	})
}

func TestNodeCount(t *testing.T) {
	runTestsForAllStores(t, "Count", func(t *testing.T, store Storer) {
		ctx := context.Background()
		count, err := store.CountNodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		for i := 0; i < 5; i++ {
			require.NoError(t, store.UpsertNode(ctx, toot("user://"+string(rune('a'+i)), "n")))
		}
		require.NoError(t, store.UpsertNode(ctx, toot("user://a", "again")))

		count, err = store.CountNodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})
}

func TestStoreReturnsCopies(t *testing.T) {
	runTestsForAllStores(t, "Copies", func(t *testing.T, store Storer) {
		ctx := context.Background()
		node := toot("user://x", "original", "user://y")
		require.NoError(t, store.UpsertNode(ctx, node))
		node.Links[0] = "mutated"

		got, err := store.GetNode(ctx, "user://x")
		require.NoError(t, err)
		assert.Equal(t, []string{"user://y"}, got.Links)
	})
}

// =============================================================================
// SQLite specifics
// =============================================================================

func TestSQLiteVersionHistory(t *testing.T) {
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	defer s.Close()

	clock := time.UnixMilli(1000)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	ctx := context.Background()
	require.NoError(t, s.UpsertNode(ctx, toot("user://v", "first")))
	require.NoError(t, s.UpsertNode(ctx, toot("user://v", "second")))
	require.NoError(t, s.UpsertNode(ctx, toot("user://v", "third")))

	versions, err := s.ListNodeVersions(ctx, "user://v")
	require.NoError(t, err)
	require.Len(t, versions, 3)

	assert.Equal(t, 3, versions[0].Version)
	assert.True(t, versions[0].IsCurrent)
	assert.Nil(t, versions[0].ValidTo)
	assert.Equal(t, "third", versions[0].Node.PropString("description"))

	assert.Equal(t, 1, versions[2].Version)
	assert.False(t, versions[2].IsCurrent)
	require.NotNil(t, versions[2].ValidTo)
	assert.Equal(t, versions[1].ValidFrom, *versions[2].ValidTo)
}

func TestSQLiteFilePersistence(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nodes.db")
	ctx := context.Background()

	s, err := NewSQLiteStoreWithDSN(dsn)
	require.NoError(t, err)
	require.NoError(t, s.UpsertNode(ctx, toot("user://durable", "kept")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStoreWithDSN(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetNode(ctx, "user://durable")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kept", got.PropString("description"))
}

func TestStorerInterface(t *testing.T) {
	var _ Storer = NewMemStore()

	sqlite, err := NewSQLiteStore()
	require.NoError(t, err)
	defer sqlite.Close()
	var _ VersionedStorer = sqlite

	fs, err := fsStoreFactory()
	require.NoError(t, err)
	var _ Storer = fs
}
