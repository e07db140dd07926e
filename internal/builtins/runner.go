package builtins

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/nodegraph/pkg/graph"
	"github.com/kittclouds/nodegraph/pkg/resource"
)

// Argument types passed to a command as written instead of evaluated.
const (
	typeString = "builtin://String"
	typeFloat  = "builtin://Float"
)

// Run is one command invocation. Command is a command node id or name.
// Args are keyed by argument name; an argument of a primitive type is a
// value, any other is a nested Run.
type Run struct {
	Command string         `json:"command" yaml:"command"`
	Args    map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// ParseRun decodes a Run from YAML or JSON.
func ParseRun(data []byte) (*Run, error) {
	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	if run.Command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrBadArgument)
	}
	return &run, nil
}

// CommandInfo describes one runnable command.
type CommandInfo struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Arguments []graph.Argument `json:"arguments"`
	Returns   string           `json:"returns,omitempty"`
}

// Runner evaluates nested command invocations against the graph.
type Runner struct {
	graph  *GraphLibrary
	loader *resource.Loader
}

func initCommandRunner(c *resource.Construction) (*Exports, error) {
	g, err := GraphOf(c.Imports.Get("graph"))
	if err != nil {
		return nil, err
	}
	r := &Runner{graph: g, loader: c.Loader}
	list := func(ctx context.Context, args ...any) (any, error) {
		return r.Commands()
	}
	return &Exports{
		Members: map[string]any{"runner": r},
		Methods: map[string]resource.Method{
			"init":     list,
			"commands": list,
			"evaluate": func(ctx context.Context, args ...any) (any, error) {
				if len(args) == 0 {
					return nil, fmt.Errorf("%w: missing run", ErrBadArgument)
				}
				run, err := asRun(args[0])
				if err != nil {
					return nil, err
				}
				return r.Evaluate(ctx, run)
			},
		},
	}, nil
}

// Commands lists the command nodes in the graph, ordered by name then id.
func (r *Runner) Commands() ([]CommandInfo, error) {
	nodes, err := r.graph.Nodes()
	if err != nil {
		return nil, err
	}
	out := []CommandInfo{}
	for _, n := range nodes {
		if n.Kind() == graph.KindCommand {
			out = append(out, CommandInfo{ID: n.ID, Name: n.Name, Arguments: n.Arguments, Returns: n.Returns})
		}
	}
	slices.SortFunc(out, func(a, b CommandInfo) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// resolve finds the command node named by ref, by id first, then by name.
func (r *Runner) resolve(ref string) (*graph.Node, error) {
	if n, err := r.graph.Node(ref); err == nil {
		if n.Kind() != graph.KindCommand {
			return nil, fmt.Errorf("%w: %s is not a command", ErrBadArgument, ref)
		}
		return n, nil
	}
	infos, err := r.Commands()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name == ref {
			return r.graph.Node(info.ID)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, ref)
}

// Evaluate runs the command of run. Arguments are evaluated first, in
// declaration order: primitives are passed through, arguments typed
// builtin://Command are passed as the loaded command, and the rest are
// evaluated as nested runs.
func (r *Runner) Evaluate(ctx context.Context, run *Run) (any, error) {
	node, err := r.resolve(run.Command)
	if err != nil {
		return nil, err
	}
	res, err := r.loader.Load(ctx, node.ID)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(node.Arguments))
	for _, a := range node.Arguments {
		raw, ok := run.Args[a.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing argument %s", ErrBadArgument, node.Name, a.Name)
		}
		v, err := r.argument(ctx, a, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", node.Name, a.Name, err)
		}
		args = append(args, v)
	}
	return res.Call(ctx, "run", args...)
}

func (r *Runner) argument(ctx context.Context, a graph.Argument, raw any) (any, error) {
	switch a.Type {
	case typeString, typeFloat:
		return primitive(a.Type, raw)
	case graph.TypeCommand:
		sub, err := asRun(raw)
		if err != nil {
			return nil, err
		}
		node, err := r.resolve(sub.Command)
		if err != nil {
			return nil, err
		}
		return r.loader.Load(ctx, node.ID)
	default:
		sub, err := asRun(raw)
		if err != nil {
			return nil, err
		}
		return r.Evaluate(ctx, sub)
	}
}

// primitive unwraps a primitive argument. A value written as a run keeps
// its command field as the value.
func primitive(typ string, raw any) (any, error) {
	switch raw.(type) {
	case map[string]any, *Run, Run:
		run, err := asRun(raw)
		if err != nil {
			return nil, err
		}
		raw = run.Command
	}
	switch typ {
	case typeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	default:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %T is not a %s", ErrBadArgument, raw, typ)
}

// asRun accepts a Run, a decoded map or a bare command reference.
func asRun(v any) (*Run, error) {
	switch r := v.(type) {
	case *Run:
		if r == nil {
			return nil, fmt.Errorf("%w: nil run", ErrBadArgument)
		}
		return r, nil
	case Run:
		return &r, nil
	case string:
		return &Run{Command: r}, nil
	case map[string]any:
		command, ok := r["command"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: run has no command", ErrBadArgument)
		}
		run := &Run{Command: command}
		switch args := r["args"].(type) {
		case nil:
		case map[string]any:
			run.Args = args
		default:
			return nil, fmt.Errorf("%w: args of %s is %T", ErrBadArgument, command, args)
		}
		return run, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a run", ErrBadArgument, v)
	}
}
