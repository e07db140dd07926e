package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kittclouds/nodegraph/internal/builtins"
	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/kernel"
	"github.com/kittclouds/nodegraph/internal/logs"
	"github.com/kittclouds/nodegraph/internal/store"
	"github.com/kittclouds/nodegraph/pkg/graph"
)

func main() {
	dir, err := os.MkdirTemp("", "nodegraph-storetest")
	if err != nil {
		log.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)

	for _, backend := range []config.Store{
		{Backend: config.BackendMemory},
		{Backend: config.BackendSQLite, DSN: filepath.Join(dir, "nodes.db")},
		{Backend: config.BackendFS, Dir: filepath.Join(dir, "fs")},
	} {
		fmt.Printf("Testing %s backend...\n", backend.Backend)
		testBackend(backend)
		fmt.Println()
	}

	fmt.Println("✅ All backends passed!")
}

func testBackend(backend config.Store) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store = backend

	k, closer, err := kernel.Open(ctx, cfg, logs.Discard())
	if err != nil {
		log.Fatalf("Open failed: %v", err)
	}
	fmt.Println("  ✓ Boot works")

	saved, err := k.Save(ctx, []*graph.Node{{
		Type:  builtins.TypeToot,
		Links: []string{"preload://launcher"},
		Props: map[string]any{"description": "storetest"},
	}})
	if err != nil {
		log.Fatalf("Save failed: %v", err)
	}
	id := saved[0].ID
	fmt.Println("  ✓ Save works:", id)

	record, err := k.Adapter.Durable().GetNode(ctx, id)
	if err != nil {
		log.Fatalf("GetNode failed: %v", err)
	}
	if record == nil {
		log.Fatal("GetNode returned nil")
	}
	fmt.Println("  ✓ GetNode works")

	if links := k.Graph.Backlinks.Get("preload://launcher"); len(links) != 1 || links[0] != id {
		log.Fatalf("Backlinks expected [%s], got %v", id, links)
	}
	fmt.Println("  ✓ Backlinks work")

	if versioned, ok := k.Adapter.Durable().(store.VersionedStorer); ok {
		versions, err := versioned.ListNodeVersions(ctx, id)
		if err != nil {
			log.Fatalf("ListNodeVersions failed: %v", err)
		}
		if len(versions) != 1 {
			log.Fatalf("ListNodeVersions expected 1, got %d", len(versions))
		}
		fmt.Println("  ✓ ListNodeVersions works")
	}

	if err := closer.Close(); err != nil {
		log.Fatalf("Close failed: %v", err)
	}
	if backend.Backend == config.BackendMemory {
		return
	}

	reopened, closer, err := kernel.Open(ctx, cfg, logs.Discard())
	if err != nil {
		log.Fatalf("Reopen failed: %v", err)
	}
	defer closer.Close()
	if !reopened.Graph.Store.Has(id) {
		log.Fatalf("Replay lost %s", id)
	}
	fmt.Println("  ✓ Replay works")
}
