package graph

import (
	"slices"
	"sync"
)

// Backlinks maps a node id to the ids of the nodes whose links point at it.
//
// An entry is created the first time an id is seen, either as an inserted
// node or as a link target, and is never removed. Re-inserting a node
// retracts it from targets its new record no longer links to.
type Backlinks struct {
	mu      *sync.RWMutex
	entries map[string][]string
}

// NewBacklinks creates an empty, standalone index.
func NewBacklinks() *Backlinks {
	return newBacklinks(new(sync.RWMutex))
}

func newBacklinks(mu *sync.RWMutex) *Backlinks {
	return &Backlinks{
		mu:      mu,
		entries: make(map[string][]string),
	}
}

// Ensure guarantees an entry exists for id.
func (b *Backlinks) Ensure(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensure(id)
}

// OnInsert updates the index for node. previous is the record node replaces,
// or nil on first insertion.
func (b *Backlinks) OnInsert(node, previous *Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onInsert(node, previous)
}

// Get returns the ids linking to id, in first-link order.
// Unseen ids yield an empty slice.
func (b *Backlinks) Get(id string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry := b.entries[id]
	if entry == nil {
		return []string{}
	}
	return slices.Clone(entry)
}

// Has reports whether an entry exists for id.
func (b *Backlinks) Has(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[id]
	return ok
}

// All returns a snapshot of the whole index.
func (b *Backlinks) All() map[string][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]string, len(b.entries))
	for id, entry := range b.entries {
		out[id] = slices.Clone(entry)
	}
	return out
}

// Len returns the number of entries.
func (b *Backlinks) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Backlinks) ensure(id string) {
	if _, ok := b.entries[id]; !ok {
		b.entries[id] = []string{}
	}
}

func (b *Backlinks) onInsert(node, previous *Node) {
	// may be loading this node before its link targets
	b.ensure(node.ID)

	if previous != nil {
		for _, link := range previous.Links {
			if slices.Contains(node.Links, link) {
				continue
			}
			b.entries[link] = slices.DeleteFunc(b.entries[link], func(id string) bool {
				return id == node.ID
			})
		}
	}

	for _, link := range node.Links {
		b.ensure(link)
		if !slices.Contains(b.entries[link], node.ID) {
			b.entries[link] = append(b.entries[link], node.ID)
		}
	}
}
