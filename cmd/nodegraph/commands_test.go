package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/nodegraph/internal/builtins"
	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/kernel"
	"github.com/kittclouds/nodegraph/internal/logs"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

func openKernel(t *testing.T, cfg *config.Config) *kernel.Kernel {
	t.Helper()
	k, closer, err := kernel.Open(context.Background(), cfg, logs.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { closer.Close() })
	return k
}

func TestParseSingleNode(t *testing.T) {
	nodes, err := parseNodes([]byte(`
type: builtin://Toot
links: [preload://launcher]
props:
  description: hello
`))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "builtin://Toot", nodes[0].Type)
	assert.Equal(t, []string{"preload://launcher"}, nodes[0].Links)
	assert.Equal(t, "hello", nodes[0].PropString("description"))
}

func TestParseNodeList(t *testing.T) {
	nodes, err := parseNodes([]byte(`[{"id": "user://a", "type": "builtin://Toot"}, {"id": "user://b", "type": "builtin://Toot"}]`))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "user://a", nodes[0].ID)
	assert.Equal(t, "user://b", nodes[1].ID)
}

func TestParseNodesRejectsGarbage(t *testing.T) {
	_, err := parseNodes([]byte("type: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv("NODEGRAPH_STORE", "sqlite")
	configPath = t.TempDir() + "/missing.toml"
	storeFlag = "memory"
	levelFlag = "debug"
	t.Cleanup(func() { storeFlag, levelFlag = "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	configPath = t.TempDir() + "/missing.toml"
	storeFlag = "tape"
	t.Cleanup(func() { storeFlag = "" })

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestRunCommandExpression(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.Store{Backend: config.BackendMemory}
	k := openKernel(t, cfg)

	out, err := runCommand(context.Background(), k,
		[]byte(`{command: nodes, args: {graph: {command: graph}, type: builtin://Application}}`))
	require.NoError(t, err)
	apps, ok := out.([]*resource.Resource)
	require.True(t, ok, "run returned %T", out)
	assert.Len(t, apps, 7)

	_, err = runCommand(context.Background(), k, []byte(`{command: nodes, args: {graph: graph}}`))
	require.ErrorIs(t, err, builtins.ErrBadArgument)
}

func TestImportTweetsPersists(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store = config.Store{Backend: config.BackendFS, Dir: filepath.Join(t.TempDir(), "fs")}

	archive := builtins.TweetArchivePrefix + `[{"tweet": {"id": "42", "created_at": "Wed Oct 10 20:19:24 +0000 2018", "full_text": "hello"}}]`
	k, closer, err := kernel.Open(ctx, cfg, logs.Discard())
	require.NoError(t, err)
	saved, err := importTweets(ctx, k, archive, "kitt")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NoError(t, closer.Close())

	reopened := openKernel(t, cfg)
	got, err := reopened.Graph.Get(saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, builtins.TypeTweet, got.Type)
	assert.Equal(t, "hello", got.PropString("text"))
	assert.Equal(t, "kitt", got.PropString("user"))

	_, err = importTweets(ctx, reopened, archive, "")
	require.ErrorIs(t, err, builtins.ErrBadArgument)
}
