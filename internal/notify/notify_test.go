package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx)
	require.NoError(t, err)

	n := Notification{ID: "user://1", Timestamp: 42, Origin: "tab-a"}
	require.NoError(t, hub.Publish(ctx, n))

	assert.Equal(t, n, receive(t, a))
	assert.Equal(t, n, receive(t, b))
}

func TestHubUnsubscribeOnCancel(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	// nobody listening, publish must not block
	require.NoError(t, hub.Publish(context.Background(), Notification{ID: "x"}))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	slow, err := hub.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 {
			assert.NoError(t, hub.Publish(context.Background(), Notification{ID: "x", Timestamp: int64(i)}))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full stream")
	}
	assert.Equal(t, int64(2), hub.Dropped())
	assert.Equal(t, int64(0), receive(t, slow).Timestamp)

	// cancelling must not deadlock against publishers
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-slow:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHubClosed(t *testing.T) {
	hub := NewHub(1)
	require.NoError(t, hub.Close())

	_, err := hub.Subscribe(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, hub.Publish(context.Background(), Notification{ID: "x"}), ErrClosed)
}

func TestDirChannel(t *testing.T) {
	dir := t.TempDir()

	publisher, err := NewDirChannel(dir, nil)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := NewDirChannel(dir, nil)
	require.NoError(t, err)
	defer subscriber.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := subscriber.Subscribe(ctx)
	require.NoError(t, err)

	n := Notification{ID: "user://abc", Timestamp: 7, Origin: "proc-1"}
	require.NoError(t, publisher.Publish(ctx, n))

	assert.Equal(t, n, receive(t, ch))
}
