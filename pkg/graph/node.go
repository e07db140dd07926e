package graph

import (
	"maps"
	"slices"
	"strings"
)

// Well-known builtin ids.
const (
	TypeAny         = "builtin://Any"
	TypeType        = "builtin://Type"
	TypeApplication = "builtin://Application"
	TypeLibrary     = "builtin://Library"
	TypeCommand     = "builtin://Command"
	TypeCommandDesc = "builtin://CommandDesc"

	// GraphLibraryID is the one library granted live access to the Store and Backlinks.
	GraphLibraryID = "builtin://Graph"
)

// Id namespaces. The prefix records where a node came from.
const (
	NamespaceBuiltin = "builtin://"
	NamespacePreload = "preload://"
	NamespaceUser    = "user://"
)

// Kind is the closed set of node kinds the kernel dispatches on.
// Nodes typed by any other node are Custom.
type Kind int

const (
	KindCustom Kind = iota
	KindTypeDecl
	KindApplication
	KindLibrary
	KindCommand
	KindCommandDesc
)

func (k Kind) String() string {
	switch k {
	case KindTypeDecl:
		return "TypeDecl"
	case KindApplication:
		return "Application"
	case KindLibrary:
		return "Library"
	case KindCommand:
		return "Command"
	case KindCommandDesc:
		return "CommandDesc"
	default:
		return "Custom"
	}
}

// ConstructKind selects how a type turns a copied node into a Resource.
type ConstructKind string

const (
	ConstructIdentity ConstructKind = "identity"
	ConstructHandler  ConstructKind = "handler"
)

// Construct is the construction strategy declared by a type node.
type Construct struct {
	Kind    ConstructKind `json:"kind" yaml:"kind"`
	Handler string        `json:"handler,omitempty" yaml:"handler,omitempty"`
}

// TypeRef is a tagged type reference, e.g. [import, builtin://Dict, String, Signature].
type TypeRef []string

// Type reference tags.
const (
	RefImport = "import"
	RefTuple  = "tuple"
	RefSelf   = "self"
)

// Tag returns the leading tag, or "" for an empty ref.
func (r TypeRef) Tag() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// Target returns the referenced node id of an import ref.
func (r TypeRef) Target() (string, bool) {
	if r.Tag() != RefImport || len(r) < 2 {
		return "", false
	}
	return r[1], true
}

// Signature describes a method on a type: argument and result type aliases.
type Signature struct {
	Args    []string `json:"args" yaml:"args"`
	Results []string `json:"results" yaml:"results"`
}

// Argument is a named, typed command parameter.
type Argument struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Node is a declarative graph record.
// Nodes are replaced whole; callers must not patch a stored node in place.
type Node struct {
	ID      string            `json:"id" yaml:"id"`
	Type    string            `json:"type" yaml:"type"`
	Links   []string          `json:"links" yaml:"links"`
	Imports map[string]string `json:"imports,omitempty" yaml:"imports,omitempty"`

	// Type declarations
	Name      string               `json:"name,omitempty" yaml:"name,omitempty"`
	Params    []string             `json:"params,omitempty" yaml:"params,omitempty"`
	Fields    map[string]string    `json:"fields,omitempty" yaml:"fields,omitempty"`
	Methods   map[string]Signature `json:"methods,omitempty" yaml:"methods,omitempty"`
	Types     map[string]TypeRef   `json:"types,omitempty" yaml:"types,omitempty"`
	Construct *Construct           `json:"construct,omitempty" yaml:"construct,omitempty"`

	// Applications, libraries and commands
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	Init      string     `json:"init,omitempty" yaml:"init,omitempty"`
	Arguments []Argument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Returns   string     `json:"returns,omitempty" yaml:"returns,omitempty"`

	// Payload of user-defined schema nodes
	Props map[string]any `json:"props,omitempty" yaml:"props,omitempty"`
}

// Kind classifies the node by its type id.
func (n *Node) Kind() Kind {
	switch n.Type {
	case TypeType:
		return KindTypeDecl
	case TypeApplication:
		return KindApplication
	case TypeLibrary:
		return KindLibrary
	case TypeCommand:
		return KindCommand
	case TypeCommandDesc:
		return KindCommandDesc
	default:
		return KindCustom
	}
}

// Namespace returns the provenance prefix of the node id ("builtin://", ...),
// or "" when the id carries none.
func (n *Node) Namespace() string {
	i := strings.Index(n.ID, "://")
	if i < 0 {
		return ""
	}
	return n.ID[:i+3]
}

// ImportTargets returns the targets of the node's import type refs,
// deduplicated, in alias order.
func (n *Node) ImportTargets() []string {
	var out []string
	for _, alias := range slices.Sorted(maps.Keys(n.Types)) {
		target, ok := n.Types[alias].Target()
		if ok && !slices.Contains(out, target) {
			out = append(out, target)
		}
	}
	return out
}

// Prop returns a props entry.
func (n *Node) Prop(key string) (any, bool) {
	v, ok := n.Props[key]
	return v, ok
}

// PropString returns a props entry as a string, "" when absent or not a string.
func (n *Node) PropString(key string) string {
	s, _ := n.Props[key].(string)
	return s
}

// Clone returns a deep copy of the node's containers.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Links = slices.Clone(n.Links)
	c.Imports = maps.Clone(n.Imports)
	c.Params = slices.Clone(n.Params)
	c.Fields = maps.Clone(n.Fields)
	if n.Methods != nil {
		c.Methods = make(map[string]Signature, len(n.Methods))
		for k, sig := range n.Methods {
			c.Methods[k] = Signature{Args: slices.Clone(sig.Args), Results: slices.Clone(sig.Results)}
		}
	}
	if n.Types != nil {
		c.Types = make(map[string]TypeRef, len(n.Types))
		for k, ref := range n.Types {
			c.Types[k] = slices.Clone(ref)
		}
	}
	if n.Construct != nil {
		cons := *n.Construct
		c.Construct = &cons
	}
	c.Arguments = slices.Clone(n.Arguments)
	c.Props = maps.Clone(n.Props)
	return &c
}
