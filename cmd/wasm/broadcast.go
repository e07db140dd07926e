//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"sync"
	"syscall/js"

	"github.com/kittclouds/nodegraph/internal/notify"
)

// broadcastChannel carries notifications between browser tabs over a
// BroadcastChannel. A tab never receives its own posts.
type broadcastChannel struct {
	mu        sync.Mutex
	bc        js.Value
	onMessage js.Func
	subs      map[chan notify.Notification]struct{}
	closed    bool
}

var _ notify.Channel = (*broadcastChannel)(nil)

func newBroadcastChannel(name string) *broadcastChannel {
	c := &broadcastChannel{
		bc:   js.Global().Get("BroadcastChannel").New(name),
		subs: make(map[chan notify.Notification]struct{}),
	}
	c.onMessage = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return nil
		}
		var n notify.Notification
		if err := json.Unmarshal([]byte(args[0].Get("data").String()), &n); err != nil {
			println("[nodegraph] dropped malformed notification:", err.Error())
			return nil
		}
		c.deliver(n)
		return nil
	})
	c.bc.Set("onmessage", c.onMessage)
	return c
}

// deliver must not block the JS event loop, so slow subscribers lose
// notifications.
func (c *broadcastChannel) deliver(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (c *broadcastChannel) Publish(ctx context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return notify.ErrClosed
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	c.bc.Call("postMessage", string(data))
	return nil
}

func (c *broadcastChannel) Subscribe(ctx context.Context) (<-chan notify.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, notify.ErrClosed
	}
	ch := make(chan notify.Notification, 64)
	c.subs[ch] = struct{}{}
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (c *broadcastChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.bc.Call("close")
	c.onMessage.Release()
	return nil
}
