// Package mentions finds references to graph nodes in free text.
// One Aho-Corasick automaton over node titles and names serves as both
// dictionary lookup and text scanner; explicit [[id]] wikilinks are
// recognised as well.
package mentions

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/orsinium-labs/stopwords"
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// ============================================================================
// String Utilities
// ============================================================================

// fold maps one rune to its matching form. Separators become ' '.
func fold(ch rune) rune {
	c := unicode.ToLower(ch)

	// Curly apostrophe -> straight
	if c == '’' {
		return '\''
	}
	if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '\'' {
		return c
	}
	return ' '
}

// Normalize cleans and lowercases a surface form for matching.
func Normalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	for _, ch := range s {
		out.WriteRune(fold(ch))
	}
	return strings.Join(strings.Fields(out.String()), " ")
}

// folded is text in matching form, with every byte mapped back to the
// original rune it came from.
type folded struct {
	text   string
	starts []int
	ends   []int
}

// foldText normalizes text the way Normalize does, collapsing separator
// runs to one space, and records byte offsets into the original.
func foldText(text string) folded {
	var out strings.Builder
	out.Grow(len(text))
	f := folded{
		starts: make([]int, 0, len(text)),
		ends:   make([]int, 0, len(text)),
	}

	var buf [utf8.UTFMax]byte
	lastSpace := true
	for i, ch := range text {
		c := fold(ch)
		if c == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		n := utf8.EncodeRune(buf[:], c)
		out.Write(buf[:n])
		for range n {
			f.starts = append(f.starts, i)
			f.ends = append(f.ends, i+utf8.RuneLen(ch))
		}
	}
	f.text = out.String()
	return f
}

// span maps a [start, end) range of the folded text back to the original.
func (f folded) span(start, end int) (int, int) {
	return f.starts[start], f.ends[end-1]
}

// wholeWord reports whether [start, end) is bounded by non-word runes.
// The matcher checks single bytes, which misreads multi-byte letters.
func (f folded) wholeWord(start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(f.text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(f.text) {
		if r, _ := utf8.DecodeRuneInString(f.text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var english = stopwords.MustGet("en")

// IsStopword reports whether a normalized surface is a single common word
// that would turn ordinary prose into mentions.
func IsStopword(normalized string) bool {
	return !strings.Contains(normalized, " ") && english.Contains(normalized)
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

// ============================================================================
// Dictionary
// ============================================================================

// Entry is a node and the surface forms it can be mentioned by.
type Entry struct {
	ID       string
	Surfaces []string
}

// Mentionable reports whether prose may link to n. Builtins, type
// declarations and commands are schema, not content, and their names are
// ordinary words.
func Mentionable(n *graph.Node) bool {
	if n.Namespace() == graph.NamespaceBuiltin {
		return false
	}
	switch n.Kind() {
	case graph.KindTypeDecl, graph.KindCommand, graph.KindCommandDesc:
		return false
	}
	return true
}

// EntriesFor derives dictionary entries from the mentionable nodes: a node
// is mentionable by its title and its name.
func EntriesFor(nodes []*graph.Node) []Entry {
	var out []Entry
	for _, n := range nodes {
		if !Mentionable(n) {
			continue
		}
		var surfaces []string
		for _, s := range []string{n.Title, n.Name} {
			if s != "" && !slices.Contains(surfaces, s) {
				surfaces = append(surfaces, s)
			}
		}
		if len(surfaces) > 0 {
			out = append(out, Entry{ID: n.ID, Surfaces: surfaces})
		}
	}
	return out
}

// Dictionary maps surface forms to node ids.
type Dictionary struct {
	ac ahocorasick.AhoCorasick

	// Pattern index -> node ids (several nodes may share a title)
	patternToIDs [][]string

	// Normalized pattern -> pattern index
	patternIndex map[string]int

	patterns []string
}

// Compile builds a Dictionary from entries. Surfaces that normalize to
// nothing or to a single stopword are skipped.
func Compile(entries []Entry) *Dictionary {
	d := &Dictionary{patternIndex: make(map[string]int)}

	for _, e := range entries {
		for _, surface := range e.Surfaces {
			key := Normalize(surface)
			if key == "" || IsStopword(key) {
				continue
			}
			if idx, exists := d.patternIndex[key]; exists {
				d.patternToIDs[idx] = appendUnique(d.patternToIDs[idx], e.ID)
				continue
			}
			d.patternIndex[key] = len(d.patterns)
			d.patterns = append(d.patterns, key)
			d.patternToIDs = append(d.patternToIDs, []string{e.ID})
		}
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	d.ac = builder.Build(d.patterns)
	return d
}

// Len returns the number of distinct surface forms.
func (d *Dictionary) Len() int {
	return len(d.patterns)
}

// Lookup returns the ids mentionable by surface.
func (d *Dictionary) Lookup(surface string) []string {
	idx, ok := d.patternIndex[Normalize(surface)]
	if !ok {
		return nil
	}
	return slices.Clone(d.patternToIDs[idx])
}

// ============================================================================
// Text Scanning
// ============================================================================

// Match is one mention found in text.
type Match struct {
	Start int    // Byte offset start
	End   int    // Byte offset end
	Text  string // Original text slice
	IDs   []string
}

// [[Target]] or [[Target|Label]]
var wikilinkRe = regexp.MustCompile(`\[\[([^|\]]+)(?:\|([^\]]+))?\]\]`)

// Scan finds every mention in text, in text order. Wikilinks to unknown ids
// are reported as-is; a node may be linked before it exists.
func (d *Dictionary) Scan(text string) []Match {
	var out []Match

	var taken [][2]int
	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(text, -1) {
		target := strings.TrimSpace(text[m[2]:m[3]])
		ids := []string{target}
		if !strings.Contains(target, "://") {
			// [[Some Title]] resolves through the dictionary
			if found := d.Lookup(target); len(found) > 0 {
				ids = found
			}
		}
		out = append(out, Match{Start: m[0], End: m[1], Text: text[m[0]:m[1]], IDs: ids})
		taken = append(taken, [2]int{m[0], m[1]})
	}

	if len(d.patterns) > 0 {
		// patterns are normalized, so the text is matched in the same form
		f := foldText(text)
		for _, m := range d.ac.FindAll(f.text) {
			if !f.wholeWord(m.Start(), m.End()) {
				continue
			}
			start, end := f.span(m.Start(), m.End())
			if overlaps(taken, start, end) {
				continue
			}
			out = append(out, Match{
				Start: start,
				End:   end,
				Text:  text[start:end],
				IDs:   slices.Clone(d.patternToIDs[m.Pattern()]),
			})
		}
	}

	slices.SortFunc(out, func(a, b Match) int { return a.Start - b.Start })
	return out
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// Links returns the ids mentioned in text, deduplicated, in text order.
// exclude is left out, so a node never links to itself.
func (d *Dictionary) Links(text string, exclude ...string) []string {
	links := []string{}
	for _, m := range d.Scan(text) {
		for _, id := range m.IDs {
			if !slices.Contains(exclude, id) {
				links = appendUnique(links, id)
			}
		}
	}
	return links
}
