// Package notify carries change hints between execution contexts that share
// one durable store. A Notification names an id to re-read; it never carries
// the record itself.
package notify

import (
	"context"
	"errors"
)

// ErrClosed reports use of a closed channel.
var ErrClosed = errors.New("notification channel closed")

// Notification says that id was written at Timestamp (unix millis) by Origin.
type Notification struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Origin    string `json:"origin"`
}

// Channel fans notifications out to every subscribed context.
// Delivery order across publishers is not guaranteed.
type Channel interface {
	// Publish does not wait on slow subscribers and may drop a
	// notification for them; a missed hint is repaired by the next write.
	Publish(ctx context.Context, n Notification) error
	// Subscribe returns a stream that is closed when ctx is done or the
	// channel is closed.
	Subscribe(ctx context.Context) (<-chan Notification, error)
	Close() error
}
