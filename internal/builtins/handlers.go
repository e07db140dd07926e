package builtins

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/kittclouds/nodegraph/pkg/resource"
)

// Handler ids named by construct strategies in the tables.
const (
	HandlerRunnable    = "runnable"
	HandlerCommand     = "command"
	HandlerCommandDesc = "command-desc"
	HandlerTweet       = "tweet"
)

var (
	ErrUnknownInit    = errors.New("unknown init")
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad argument")
	ErrNotPrivileged  = errors.New("resource has no graph access")
)

// Exports is what an init contributes to an application or library Resource.
type Exports struct {
	Members map[string]any
	Methods map[string]resource.Method
}

// Init builds the exports of an application or library. It runs once per
// construction, with the Resource's imports already resolved.
type Init func(c *resource.Construction) (*Exports, error)

// Command implements a builtin://Command node's run method.
type Command func(ctx context.Context, c *resource.Construction, args ...any) (any, error)

var inits = map[string]Init{
	"graph":           initGraph,
	"mentions":        initMentions,
	"launcher":        initLauncher,
	"node-viewer":     initNodeViewer,
	"tooter":          initTooter,
	"tweet-search":    initTweetSearch,
	"note-editor":     initNoteEditor,
	"tweet-js-upload": initTweetUpload,
	"command-runner":  initCommandRunner,
}

var commands = map[string]Command{
	"graph":  commandGraph,
	"nodes":  commandNodes,
	"filter": commandFilter,
}

// Register links the builtin construction handlers into reg.
func Register(reg *resource.Registry) error {
	for id, h := range map[string]resource.Handler{
		HandlerRunnable:    constructRunnable,
		HandlerCommand:     constructCommand,
		HandlerCommandDesc: constructCommandDesc,
		HandlerTweet:       constructTweet,
	} {
		if err := reg.Register(id, h); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the builtin handlers.
func NewRegistry() *resource.Registry {
	reg := resource.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// constructRunnable runs the init named by the node and copies what it
// exports onto the Resource. A node without init is left as is.
func constructRunnable(c *resource.Construction) error {
	name := c.Resource.Init
	if name == "" {
		return nil
	}
	fn, ok := inits[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInit, name)
	}

	exports, err := fn(c)
	if err != nil {
		return err
	}
	if exports == nil {
		return nil
	}
	maps.Copy(c.Resource.Members, exports.Members)
	maps.Copy(c.Resource.Methods, exports.Methods)
	return nil
}

// constructCommand binds run to the command implementation named by init.
func constructCommand(c *resource.Construction) error {
	name := c.Resource.Init
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	want := len(c.Resource.Arguments)
	c.Resource.Methods["run"] = func(ctx context.Context, args ...any) (any, error) {
		if len(args) != want {
			return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrBadArgument, c.Resource.Name, want, len(args))
		}
		return cmd(ctx, c, args...)
	}
	return nil
}

func constructCommandDesc(c *resource.Construction) error {
	c.Resource.Methods["run"] = func(ctx context.Context, args ...any) (any, error) {
		return nil, nil
	}
	return nil
}

// TweetURL is the public address of a tweet.
func TweetURL(user, tweetID string) string {
	return fmt.Sprintf("http://www.twitter.com/%s/status/%s", user, tweetID)
}

func constructTweet(c *resource.Construction) error {
	url := TweetURL(c.Resource.PropString("user"), c.Resource.PropString("tweetId"))
	c.Resource.Members["url"] = url
	c.Resource.Methods["url"] = func(ctx context.Context, args ...any) (any, error) {
		return url, nil
	}
	return nil
}

// arg returns args[i] as a T.
func arg[T any](args []any, i int, name string) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("%w: missing %s", ErrBadArgument, name)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %T", ErrBadArgument, name, args[i], zero)
	}
	return v, nil
}

// optArg is arg for trailing optional arguments.
func optArg[T any](args []any, i int, name string) (T, error) {
	var zero T
	if i >= len(args) || args[i] == nil {
		return zero, nil
	}
	return arg[T](args, i, name)
}
