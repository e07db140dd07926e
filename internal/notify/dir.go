package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirChannel is a cross-process Channel backed by a directory: Publish
// writes <dir>/<escaped id> holding the latest notification for that id,
// and subscribers watch the directory. It plays the role the browser's
// storage event plays between tabs.
type DirChannel struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	watchers []*fsnotify.Watcher
	closed   bool
}

// NewDirChannel creates dir if needed.
func NewDirChannel(dir string, logger *slog.Logger) (*DirChannel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create notify dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirChannel{dir: dir, logger: logger}, nil
}

func (c *DirChannel) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	// write aside then rename, so watchers never read a partial file
	tmp, err := os.CreateTemp(c.dir, ".pending-*")
	if err != nil {
		return fmt.Errorf("failed to stage notification: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage notification: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, url.PathEscape(n.ID))); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish notification for %s: %w", n.ID, err)
	}
	return nil
}

func (c *DirChannel) Subscribe(ctx context.Context) (<-chan Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	c.watchers = append(c.watchers, watcher)

	out := make(chan Notification, 16)
	go c.pump(ctx, watcher, out)
	return out, nil
}

func (c *DirChannel) pump(ctx context.Context, watcher *fsnotify.Watcher, out chan<- Notification) {
	defer close(out)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			n, err := c.read(event.Name)
			if err != nil {
				c.logger.Warn("unreadable notification", "file", event.Name, "error", err)
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("notify watcher error", "error", err)
		}
	}
}

func (c *DirChannel) read(name string) (Notification, error) {
	var n Notification
	data, err := os.ReadFile(name)
	if err != nil {
		return n, err
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return n, err
	}
	if n.ID == "" {
		return n, errors.New("notification without id")
	}
	return n, nil
}

// Close stops every subscription.
func (c *DirChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for _, w := range c.watchers {
		errs = append(errs, w.Close())
	}
	c.watchers = nil
	return errors.Join(errs...)
}

var _ Channel = (*DirChannel)(nil)
