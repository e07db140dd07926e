package main

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kittclouds/nodegraph/internal/builtins"
	"github.com/kittclouds/nodegraph/internal/kernel"
	"github.com/kittclouds/nodegraph/internal/store"
	"github.com/kittclouds/nodegraph/pkg/graph"
)

var (
	listType   string
	limitN     int
	tweetUser  string
	expression string
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a node record",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		node, err := s.kernel.Graph.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, node)
	}),
}

var loadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Build the resource for a node and print it",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		res, err := s.kernel.Load(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, res)
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes in the graph",
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		var nodes []*graph.Node
		if listType != "" {
			nodes = s.kernel.Graph.Store.OfType(listType)
		} else {
			all := s.kernel.Graph.Store.Nodes()
			for _, id := range s.kernel.Graph.Store.IDs() {
				nodes = append(nodes, all[id])
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tTITLE")
		for _, n := range nodes {
			title := n.Title
			if title == "" {
				title = n.Name
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", n.ID, n.Type, title)
		}
		return w.Flush()
	}),
}

var backlinksCmd = &cobra.Command{
	Use:   "backlinks <id>",
	Short: "Print the ids linking to a node",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		for _, id := range s.kernel.Graph.Backlinks.Get(args[0]) {
			fmt.Println(id)
		}
		return nil
	}),
}

var saveCmd = &cobra.Command{
	Use:   "save <file>...",
	Short: "Save nodes from YAML or JSON files",
	Long:  `Each file holds one node or a list of nodes. Nodes without an id are given a fresh user:// id.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		var nodes []*graph.Node
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			parsed, err := parseNodes(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			nodes = append(nodes, parsed...)
		}

		saved, err := s.kernel.Save(ctx, nodes)
		if err != nil {
			return err
		}
		for _, n := range saved {
			fmt.Println(n.ID)
		}
		return nil
	}),
}

// parseNodes decodes one node or a sequence of nodes. JSON input is valid YAML.
func parseNodes(data []byte) ([]*graph.Node, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse nodes: %w", err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.SequenceNode {
		var nodes []*graph.Node
		if err := doc.Decode(&nodes); err != nil {
			return nil, err
		}
		return nodes, nil
	}
	var node graph.Node
	if err := doc.Decode(&node); err != nil {
		return nil, err
	}
	return []*graph.Node{&node}, nil
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the stored versions of a node (sqlite backend)",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		versioned, ok := s.kernel.Adapter.Durable().(store.VersionedStorer)
		if !ok {
			return errors.New("the configured store keeps no history")
		}
		versions, err := versioned.ListNodeVersions(ctx, args[0])
		if err != nil {
			return err
		}
		if limitN > 0 && len(versions) > limitN {
			versions = versions[:limitN]
		}
		return printJSON(os.Stdout, versions)
	}),
}

var launchCmd = &cobra.Command{
	Use:   "launch [id]",
	Short: "Launch an application and print what its init returns",
	Long:  `Launches the given application, or the configured default when it is omitted or not in the graph.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		launched, err := s.kernel.Launch(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, launched.Result)
	}),
}

var callCmd = &cobra.Command{
	Use:   "call <id> <method> [args]...",
	Short: "Load a node and call one of its methods with string arguments",
	Args:  cobra.MinimumNArgs(2),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		res, err := s.kernel.Load(ctx, args[0])
		if err != nil {
			return err
		}
		callArgs := make([]any, 0, len(args)-2)
		for _, a := range args[2:] {
			callArgs = append(callArgs, a)
		}
		out, err := res.Call(ctx, args[1], callArgs...)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, out)
	}),
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Evaluate a command invocation and print its result",
	Long: `Evaluates a nested {command, args} invocation from a YAML or JSON file, or from --expr.
Primitive arguments are passed as written; any other argument is itself an invocation.`,
	Example: `  nodegraph run -e '{command: nodes, args: {graph: {command: graph}, type: builtin://Application}}'`,
	Args:    cobra.MaximumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		var data []byte
		switch {
		case expression != "" && len(args) == 1:
			return errors.New("give either a file or --expr, not both")
		case expression != "":
			data = []byte(expression)
		case len(args) == 1:
			read, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			data = read
		default:
			return errors.New("nothing to run: give a file or --expr")
		}

		out, err := runCommand(ctx, s.kernel, data)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, out)
	}),
}

// runCommand evaluates an invocation with the command runner application.
func runCommand(ctx context.Context, k *kernel.Kernel, data []byte) (any, error) {
	run, err := builtins.ParseRun(data)
	if err != nil {
		return nil, err
	}
	runner, err := k.Load(ctx, "preload://command-runner")
	if err != nil {
		return nil, err
	}
	return runner.Call(ctx, "evaluate", run)
}

var importTweetsCmd = &cobra.Command{
	Use:   "import-tweets <tweet.js>",
	Short: "Import the tweets of a Twitter data export",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		saved, err := importTweets(ctx, s.kernel, string(data), tweetUser)
		if err != nil {
			return err
		}
		s.logger.Info("imported tweets", "count", len(saved), "user", tweetUser)
		for _, n := range saved {
			fmt.Println(n.ID)
		}
		return nil
	}),
}

// importTweets uploads a tweet.js export through the uploader application.
func importTweets(ctx context.Context, k *kernel.Kernel, text, user string) ([]*graph.Node, error) {
	uploader, err := k.Load(ctx, "preload://tweet-js-upload")
	if err != nil {
		return nil, err
	}
	out, err := uploader.Call(ctx, "upload", text, user)
	if err != nil {
		return nil, err
	}
	saved, ok := out.([]*graph.Node)
	if !ok {
		return nil, fmt.Errorf("upload returned %T", out)
	}
	return saved, nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow changes saved by other processes",
	Long:  `Applies change notifications from the shared notify directory and prints each node as it is updated. Stops on interrupt.`,
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		if s.cfg.Notify.Dir == "" {
			return errors.New("watch needs a notify directory (--notify-dir)")
		}
		unsubscribe := s.kernel.Graph.Store.Subscribe(func(c graph.Change) {
			kind := "updated"
			if c.Previous == nil {
				kind = "added"
			}
			fmt.Printf("%s %s %s\n", kind, c.ID, c.Node.Type)
		})
		defer unsubscribe()
		return s.kernel.Run(ctx)
	}),
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.Encode()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List launchable applications",
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		apps := s.kernel.Graph.Store.OfType(graph.TypeApplication)
		slices.SortFunc(apps, func(a, b *graph.Node) int {
			return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
		})
		for _, a := range apps {
			marker := " "
			if a.ID == s.kernel.DefaultApp() {
				marker = "*"
			}
			fmt.Printf("%s %s\t%s\n", marker, a.ID, a.Title)
		}
		return nil
	}),
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "Only nodes of this type id")
	historyCmd.Flags().IntVarP(&limitN, "limit", "n", 0, "Number of versions to show (0 for all)")
	runCmd.Flags().StringVarP(&expression, "expr", "e", "", "Invocation to evaluate, as YAML or JSON")
	importTweetsCmd.Flags().StringVarP(&tweetUser, "user", "u", "", "Username of the exported account")
	_ = importTweetsCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(getCmd, loadCmd, listCmd, backlinksCmd, saveCmd, historyCmd,
		launchCmd, callCmd, runCmd, importTweetsCmd, watchCmd, configCmd, appsCmd)
}
