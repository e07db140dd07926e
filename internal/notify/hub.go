package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub is an in-process Channel, standing in for a browser's cross-tab
// broadcast when several contexts live in one process. Like a broadcast
// channel it never waits on a slow subscriber.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Notification]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewHub creates a hub whose subscriber streams buffer up to buffer
// notifications. Publishing to a full stream drops the notification
// for that subscriber.
func NewHub(buffer int) *Hub {
	return &Hub{
		subs:   make(map[chan Notification]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Publish(ctx context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many deliveries were dropped on full streams.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	ch := make(chan Notification, h.buffer)
	h.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	return nil
}

var _ Channel = (*Hub)(nil)
