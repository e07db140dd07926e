// Package main provides the nodegraph CLI: a host that boots the kernel
// against a durable store and exposes the graph from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/kernel"
	"github.com/kittclouds/nodegraph/internal/logs"
)

// Version is the nodegraph CLI version
var Version = "0.1.0"

var (
	configPath string
	storeFlag  string
	dsnFlag    string
	dataFlag   string
	notifyFlag string
	levelFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "nodegraph",
	Short:         "nodegraph - load and edit a graph of declarative nodes",
	Long:          `nodegraph boots the node graph kernel over a durable store, then loads, saves and inspects nodes and the resources built from them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "nodegraph.toml", "Path to the TOML config file")
	pf.StringVar(&storeFlag, "store", "", "Durable store backend: memory, sqlite or fs")
	pf.StringVar(&dsnFlag, "dsn", "", "SQLite database file")
	pf.StringVar(&dataFlag, "data", "", "Directory of the fs backend")
	pf.StringVar(&notifyFlag, "notify-dir", "", "Shared directory for cross-process change notifications")
	pf.StringVar(&levelFlag, "log-level", "", "Log level: debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies flags over the file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeFlag != "" {
		cfg.Store.Backend = storeFlag
	}
	if dsnFlag != "" {
		cfg.Store.DSN = dsnFlag
	}
	if dataFlag != "" {
		cfg.Store.Dir = dataFlag
	}
	if notifyFlag != "" {
		cfg.Notify.Dir = notifyFlag
	}
	if levelFlag != "" {
		cfg.Log.Level = levelFlag
	}
	return cfg, cfg.Validate()
}

// session is one booted kernel plus what must be released after the command.
type session struct {
	cfg     *config.Config
	kernel  *kernel.Kernel
	logger  *slog.Logger
	closers []io.Closer
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logs.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	k, closer, err := kernel.Open(ctx, cfg, logger)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	return &session{
		cfg:     cfg,
		kernel:  k,
		logger:  logger,
		closers: []io.Closer{logCloser, closer},
	}, nil
}

// withSession boots a kernel for the duration of fn. ctx is cancelled on
// interrupt.
func withSession(fn func(ctx context.Context, s *session, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, s, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
