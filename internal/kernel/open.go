//go:build !js

package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	osfs "github.com/hack-pad/hackpadfs/os"

	"github.com/kittclouds/nodegraph/internal/config"
	"github.com/kittclouds/nodegraph/internal/notify"
	"github.com/kittclouds/nodegraph/internal/store"
)

// OpenStore opens the durable store cfg selects.
func OpenStore(cfg config.Store) (store.Storer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemStore(), nil
	case config.BackendSQLite:
		if cfg.DSN == "" {
			return store.NewSQLiteStore()
		}
		return store.NewSQLiteStoreWithDSN(cfg.DSN)
	case config.BackendFS:
		abs, err := filepath.Abs(cfg.Dir)
		if err != nil {
			return nil, err
		}
		fs := osfs.NewFS()
		dir, err := fs.FromOSPath(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to map %s: %w", cfg.Dir, err)
		}
		return store.NewFSStore(fs, dir)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// Open boots a kernel from configuration. Closing the returned closer
// releases the store and the notification channel.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Kernel, io.Closer, error) {
	durable, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	var channel notify.Channel
	if cfg.Notify.Dir != "" {
		channel, err = notify.NewDirChannel(cfg.Notify.Dir, logger)
		if err != nil {
			durable.Close()
			return nil, nil, err
		}
	}

	k, err := Boot(ctx, Options{
		Durable:    durable,
		Channel:    channel,
		DefaultApp: cfg.DefaultApp,
		Logger:     logger,
	})
	if err != nil {
		closeAll(durable, channel)
		return nil, nil, err
	}
	return k, closerFunc(func() error { return closeAll(durable, channel) }), nil
}

func closeAll(durable store.Storer, channel notify.Channel) error {
	var errs []error
	if channel != nil {
		errs = append(errs, channel.Close())
	}
	errs = append(errs, durable.Close())
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
