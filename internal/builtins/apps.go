package builtins

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// Preloaded type ids the sample applications work with.
const (
	TypeToot  = "preload://Toot"
	TypeTweet = "preload://Tweet"
)

// TweetsPerPage is the tweet search page size.
const TweetsPerPage = 25

// ============================================================================
// Launcher
// ============================================================================

// AppEntry is one launchable application.
type AppEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func initLauncher(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	list := func(ctx context.Context, args ...any) (any, error) {
		return Applications(g)
	}
	return &Exports{Methods: map[string]resource.Method{
		"init": list,
		"list": list,
	}}, nil
}

// Applications lists every application node, ordered by title then id.
func Applications(g *GraphLibrary) ([]AppEntry, error) {
	nodes, err := g.Nodes()
	if err != nil {
		return nil, err
	}
	apps := []AppEntry{}
	for _, n := range nodes {
		if n.Kind() == graph.KindApplication {
			apps = append(apps, AppEntry{ID: n.ID, Title: n.Title})
		}
	}
	slices.SortFunc(apps, func(a, b AppEntry) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
	})
	return apps, nil
}

// ============================================================================
// Node viewer
// ============================================================================

// NodeView is a node with its type name and both link directions.
type NodeView struct {
	Node      *graph.Node `json:"node"`
	TypeName  string      `json:"typeName"`
	Links     []string    `json:"links"`
	Backlinks []string    `json:"backlinks"`
}

func initNodeViewer(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	return &Exports{Methods: map[string]resource.Method{
		"init": func(ctx context.Context, args ...any) (any, error) {
			return DescribeAll(g)
		},
		"describe": func(ctx context.Context, args ...any) (any, error) {
			id, err := arg[string](args, 0, "id")
			if err != nil {
				return nil, err
			}
			return Describe(g, id)
		},
	}}, nil
}

// Describe builds the view of one node.
func Describe(g *GraphLibrary, id string) (*NodeView, error) {
	node, err := g.Node(id)
	if err != nil {
		return nil, err
	}
	backlinks, err := g.BacklinksFor(id)
	if err != nil {
		return nil, err
	}
	view := &NodeView{
		Node:      node,
		Links:     slices.Clone(node.Links),
		Backlinks: backlinks,
	}
	// a type that is not loaded yet is shown by id
	view.TypeName = node.Type
	if typ, err := g.Node(node.Type); err == nil && typ.Name != "" {
		view.TypeName = typ.Name
	}
	return view, nil
}

// DescribeAll describes every node, ordered by id.
func DescribeAll(g *GraphLibrary) ([]*NodeView, error) {
	nodes, err := g.Nodes()
	if err != nil {
		return nil, err
	}
	views := make([]*NodeView, 0, len(nodes))
	for _, n := range nodes {
		v, err := Describe(g, n.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	slices.SortFunc(views, func(a, b *NodeView) int { return cmp.Compare(a.Node.ID, b.Node.ID) })
	return views, nil
}

// ============================================================================
// Tooter
// ============================================================================

// Tooter publishes threaded messages. A reply links to its parent, so the
// replies of a toot are its Toot backlinks.
type Tooter struct {
	graph    *GraphLibrary
	mentions *MentionsLibrary
}

func initTooter(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	m, err := MentionsOf(c.Imports.Get("mentions"))
	if err != nil {
		return nil, err
	}
	t := &Tooter{graph: g, mentions: m}

	threads := func(ctx context.Context, args ...any) (any, error) {
		return t.Threads()
	}
	return &Exports{
		Members: map[string]any{"tooter": t},
		Methods: map[string]resource.Method{
			"init":    threads,
			"threads": threads,
			"publish": func(ctx context.Context, args ...any) (any, error) {
				text, err := arg[string](args, 0, "text")
				if err != nil {
					return nil, err
				}
				parent, err := optArg[string](args, 1, "parent")
				if err != nil {
					return nil, err
				}
				return t.Publish(ctx, text, parent)
			},
			"replies": func(ctx context.Context, args ...any) (any, error) {
				id, err := arg[string](args, 0, "id")
				if err != nil {
					return nil, err
				}
				return t.Replies(id)
			},
		},
	}, nil
}

// Publish saves a toot. parent may be empty for a new thread.
func (t *Tooter) Publish(ctx context.Context, text, parent string) (*graph.Node, error) {
	links := []string{}
	if parent != "" {
		links = append(links, parent)
	}
	mentioned, err := t.mentions.Links(text)
	if err != nil {
		return nil, err
	}
	for _, id := range mentioned {
		if !slices.Contains(links, id) {
			links = append(links, id)
		}
	}

	node := &graph.Node{
		Type:  TypeToot,
		Links: links,
		Props: map[string]any{"description": text, "parent": parent},
	}
	saved, err := t.graph.SaveNodes(ctx, []*graph.Node{node})
	if err != nil {
		return nil, err
	}
	return saved[0], nil
}

// Threads returns the toots without a parent, ordered by id.
func (t *Tooter) Threads() ([]*graph.Node, error) {
	nodes, err := t.graph.Nodes()
	if err != nil {
		return nil, err
	}
	out := []*graph.Node{}
	for _, n := range nodes {
		if n.Type == TypeToot && n.PropString("parent") == "" {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *graph.Node) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Replies returns the toots replying to id, in backlink order.
func (t *Tooter) Replies(id string) ([]*graph.Node, error) {
	backlinks, err := t.graph.BacklinksFor(id)
	if err != nil {
		return nil, err
	}
	out := []*graph.Node{}
	for _, from := range backlinks {
		n, err := t.graph.Node(from)
		if err != nil {
			return nil, err
		}
		if n.Type == TypeToot && n.PropString("parent") == id {
			out = append(out, n)
		}
	}
	return out, nil
}

// ============================================================================
// Tweet search
// ============================================================================

// SearchResult is one paged tweet search.
type SearchResult struct {
	Total int                    `json:"total"`
	Pages [][]*resource.Resource `json:"pages"`
}

func initTweetSearch(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	search := func(ctx context.Context, args ...any) (any, error) {
		q, err := optArg[string](args, 0, "query")
		if err != nil {
			return nil, err
		}
		return SearchTweets(ctx, g, q)
	}
	return &Exports{Methods: map[string]resource.Method{
		"init":   search,
		"search": search,
	}}, nil
}

// SearchTweets matches the query against tweet text, case-insensitively,
// and pages the matches. There is always at least one page.
func SearchTweets(ctx context.Context, g *GraphLibrary, query string) (*SearchResult, error) {
	tweets, err := g.LoadNodesOfType(ctx, TypeTweet)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)

	result := &SearchResult{}
	page := []*resource.Resource{}
	for _, tw := range tweets {
		if !strings.Contains(strings.ToLower(tw.PropString("text")), q) {
			continue
		}
		page = append(page, tw)
		result.Total++
		if len(page) == TweetsPerPage {
			result.Pages = append(result.Pages, page)
			page = []*resource.Resource{}
		}
	}
	if len(page) > 0 || len(result.Pages) == 0 {
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

// ============================================================================
// Note editor
// ============================================================================

func initNoteEditor(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	m, err := MentionsOf(c.Imports.Get("mentions"))
	if err != nil {
		return nil, err
	}
	return &Exports{Methods: map[string]resource.Method{
		"init": func(ctx context.Context, args ...any) (any, error) {
			return Notes(g)
		},
		"edit": func(ctx context.Context, args ...any) (any, error) {
			id, err := arg[string](args, 0, "id")
			if err != nil {
				return nil, err
			}
			text, err := arg[string](args, 1, "text")
			if err != nil {
				return nil, err
			}
			return EditNote(ctx, g, m, id, text)
		},
	}}, nil
}

// Notes returns every node carrying a description, ordered by id.
func Notes(g *GraphLibrary) ([]*graph.Node, error) {
	nodes, err := g.Nodes()
	if err != nil {
		return nil, err
	}
	out := []*graph.Node{}
	for _, n := range nodes {
		if _, ok := n.Prop("description"); ok {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *graph.Node) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// EditNote replaces the description of id and recomputes its mention links.
// Links that are not mentions, such as a toot's parent, are kept.
func EditNote(ctx context.Context, g *GraphLibrary, m *MentionsLibrary, id, text string) (*graph.Node, error) {
	node, err := g.Node(id)
	if err != nil {
		return nil, err
	}
	if node.Namespace() != graph.NamespaceUser {
		return nil, fmt.Errorf("%w: %s is read-only", ErrBadArgument, id)
	}

	oldMentions, err := m.Links(node.PropString("description"), id)
	if err != nil {
		return nil, err
	}
	newMentions, err := m.Links(text, id)
	if err != nil {
		return nil, err
	}

	links := []string{}
	for _, l := range node.Links {
		if !slices.Contains(oldMentions, l) || l == node.PropString("parent") {
			links = append(links, l)
		}
	}
	for _, l := range newMentions {
		if !slices.Contains(links, l) {
			links = append(links, l)
		}
	}

	edited := node.Clone()
	if edited.Props == nil {
		edited.Props = map[string]any{}
	}
	edited.Props["description"] = text
	edited.Links = links

	saved, err := g.PutNodes(ctx, []*graph.Node{edited})
	if err != nil {
		return nil, err
	}
	return saved[0], nil
}
