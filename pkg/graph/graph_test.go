package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, typ string, links ...string) *Node {
	return &Node{ID: id, Type: typ, Links: links}
}

func TestBacklinkAccuracy(t *testing.T) {
	g := New()

	require.NoError(t, g.Insert(node("a", TypeAny, "x", "y")))
	require.NoError(t, g.Insert(node("b", TypeAny, "x")))

	assert.Equal(t, []string{"a", "b"}, g.Backlinks.Get("x"))
	assert.Equal(t, []string{"a"}, g.Backlinks.Get("y"))
	assert.Equal(t, []string{}, g.Backlinks.Get("a"))
}

func TestBacklinksUnseenID(t *testing.T) {
	g := New()

	got := g.Backlinks.Get("never-seen-id")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, g.Backlinks.Has("never-seen-id"))
}

func TestBacklinksEnsureIdempotent(t *testing.T) {
	b := NewBacklinks()
	b.Ensure("x")
	b.OnInsert(node("a", TypeAny, "x"), nil)
	b.Ensure("x")

	assert.Equal(t, []string{"a"}, b.Get("x"))
	assert.Equal(t, 2, b.Len())
}

func TestBacklinksLinkedBeforeInserted(t *testing.T) {
	g := New()

	require.NoError(t, g.Insert(node("reply", TypeAny, "parent")))
	assert.True(t, g.Backlinks.Has("parent"))
	assert.False(t, g.Store.Has("parent"))

	require.NoError(t, g.Insert(node("parent", TypeAny)))
	assert.Equal(t, []string{"reply"}, g.Backlinks.Get("parent"))
}

func TestBacklinksRetractOnReinsert(t *testing.T) {
	g := New()

	require.NoError(t, g.Insert(node("a", TypeAny, "x", "y")))
	require.NoError(t, g.Insert(node("a", TypeAny, "y", "z")))

	assert.Equal(t, []string{}, g.Backlinks.Get("x"))
	assert.True(t, g.Backlinks.Has("x"))
	assert.Equal(t, []string{"a"}, g.Backlinks.Get("y"))
	assert.Equal(t, []string{"a"}, g.Backlinks.Get("z"))
}

func TestBacklinksDuplicateLinks(t *testing.T) {
	g := New()

	require.NoError(t, g.Insert(node("a", TypeAny, "x", "x")))
	require.NoError(t, g.Insert(node("a", TypeAny, "x")))

	assert.Equal(t, []string{"a"}, g.Backlinks.Get("x"))
}

func TestInsertContractViolation(t *testing.T) {
	g := New()
	require.NoError(t, g.Insert(node("a", TypeAny)))

	err := g.Store.Insert("a", node("b", TypeAny, "x"))
	require.ErrorIs(t, err, ErrContractViolation)

	got, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Links)
	assert.False(t, g.Store.Has("b"))
	assert.False(t, g.Backlinks.Has("x"))
	assert.Equal(t, 1, g.Store.Len())

	require.ErrorIs(t, g.Insert(nil), ErrContractViolation)
}

func TestGetNotFound(t *testing.T) {
	g := New()
	_, err := g.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "nope")
}

func TestReplaceSemantics(t *testing.T) {
	g := New()

	first := node("x", TypeAny)
	first.Title = "first"
	first.Props = map[string]any{"text": "hello", "extra": 1}
	require.NoError(t, g.Insert(first))

	second := node("x", TypeAny)
	second.Props = map[string]any{"text": "bye"}
	require.NoError(t, g.Insert(second))

	got, err := g.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "", got.Title)
	assert.Equal(t, map[string]any{"text": "bye"}, got.Props)
}

func TestStoreCopiesRecords(t *testing.T) {
	g := New()

	n := node("a", TypeAny, "x")
	require.NoError(t, g.Insert(n))
	n.Links[0] = "mutated"

	got, err := g.Get("a")
	require.NoError(t, err)
	got.Links[0] = "also-mutated"

	again, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again.Links)
}

func TestSubscribe(t *testing.T) {
	g := New()

	var changes []Change
	unsubscribe := g.Store.Subscribe(func(c Change) {
		changes = append(changes, c)
	})

	require.NoError(t, g.Insert(node("a", TypeAny)))
	require.NoError(t, g.Insert(node("a", TypeAny, "b")))
	unsubscribe()
	require.NoError(t, g.Insert(node("c", TypeAny)))

	require.Len(t, changes, 2)
	assert.Nil(t, changes[0].Previous)
	assert.Equal(t, "a", changes[1].ID)
	assert.Equal(t, []string{}, changes[1].Previous.Links)
	assert.Equal(t, []string{"b"}, changes[1].Node.Links)
}

func TestSubscribeConcurrentInsertOrder(t *testing.T) {
	g := New()

	var changes []Change
	g.Store.Subscribe(func(c Change) {
		changes = append(changes, c)
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Insert(node("a", TypeAny, fmt.Sprint(i))))
		}()
	}
	wg.Wait()

	require.Len(t, changes, 50)
	assert.Nil(t, changes[0].Previous)
	for i := 1; i < len(changes); i++ {
		assert.Equal(t, changes[i-1].Node, changes[i].Previous, "change %d", i)
	}
	last, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, changes[len(changes)-1].Node, last)
}

func TestSubscribeInsertFromCallback(t *testing.T) {
	g := New()

	g.Store.Subscribe(func(c Change) {
		if c.ID == "a" {
			require.NoError(t, g.Insert(node("b", TypeAny)))
		}
	})
	var seen []string
	g.Store.Subscribe(func(c Change) {
		seen = append(seen, c.ID)
	})

	require.NoError(t, g.Insert(node("a", TypeAny)))
	require.NoError(t, g.Insert(node("c", TypeAny)))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestOfTypeAndNeighbors(t *testing.T) {
	g := New()
	require.NoError(t, g.InsertAll([]*Node{
		node("t", TypeType),
		node("b", "t", "a"),
		node("a", "t", "c"),
		node("lonely", TypeAny),
	}))

	ofType := g.Store.OfType("t")
	require.Len(t, ofType, 2)
	assert.Equal(t, "a", ofType[0].ID)
	assert.Equal(t, "b", ofType[1].ID)

	assert.Equal(t, []string{"c", "b"}, g.Neighbors("a"))
	assert.Equal(t, []string{"lonely", "t"}, g.Orphans())
}
