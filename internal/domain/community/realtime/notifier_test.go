package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"farm_community/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotifier(feed ChangeFeed) *Notifier {
	return NewNotifier(feed, metrics.NewMetricsCollector(prometheus.NewRegistry()))
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestSubscribe_RefreshesOnChange(t *testing.T) {
	feed := NewMemoryFeed()
	n := newNotifier(feed)

	var calls atomic.Int32
	sub, err := n.Subscribe(context.Background(), "p1", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, StateSubscribed, sub.State())
	assert.Equal(t, 1, feed.Subscribers("p1"))

	// 其他帖子的变更不触发刷新
	require.NoError(t, feed.Publish(context.Background(), Change{PostID: "p2", Table: "comments", Op: OpInsert}))
	require.NoError(t, feed.Publish(context.Background(), Change{PostID: "p1", Table: "comments", Op: OpInsert}))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return sub.State() == StateSubscribed }, time.Second, 5*time.Millisecond)
}

func TestSubscribe_CoalescesEventsDuringRefresh(t *testing.T) {
	feed := NewMemoryFeed()
	n := newNotifier(feed)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	sub, err := n.Subscribe(context.Background(), "p1", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ctx := context.Background()
	require.NoError(t, feed.Publish(ctx, Change{PostID: "p1", Table: "comments", Op: OpInsert}))
	waitClosed(t, started)
	assert.Equal(t, StateRefreshing, sub.State())

	for i := 0; i < 5; i++ {
		require.NoError(t, feed.Publish(ctx, Change{PostID: "p1", Table: "reactions", Op: OpDelete}))
	}
	close(release)

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	feed := NewMemoryFeed()
	n := newNotifier(feed)

	sub, err := n.Subscribe(context.Background(), "p1", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	sub.Unsubscribe()
	assert.NotPanics(t, sub.Unsubscribe)

	waitClosed(t, sub.Done())
	assert.Equal(t, StateUnsubscribed, sub.State())
	assert.Zero(t, feed.Subscribers("p1"))
}

func TestUnsubscribe_ConcurrentCallers(t *testing.T) {
	feed := NewMemoryFeed()
	n := newNotifier(feed)

	sub, err := n.Subscribe(context.Background(), "p1", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			sub.Unsubscribe()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	waitClosed(t, sub.Done())
}

func TestDroppedSubscription_NoRetry(t *testing.T) {
	feed := NewMemoryFeed()
	n := newNotifier(feed)

	var calls atomic.Int32
	sub, err := n.Subscribe(context.Background(), "p1", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	feed.Drop("p1")
	waitClosed(t, sub.Done())
	assert.Equal(t, StateUnsubscribed, sub.State())

	// 断开后不再重新订阅，也不再刷新
	require.NoError(t, feed.Publish(context.Background(), Change{PostID: "p1", Table: "comments", Op: OpInsert}))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Zero(t, feed.Subscribers("p1"))
	assert.NotPanics(t, sub.Unsubscribe)
}

func TestSubscribe_ContextCancelReleases(t *testing.T) {
	feed := NewMemoryFeed()
	n := newNotifier(feed)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := n.Subscribe(ctx, "p1", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	cancel()
	waitClosed(t, sub.Done())
	assert.Zero(t, feed.Subscribers("p1"))
}

type failingFeed struct{ MemoryFeed }

func (*failingFeed) Subscribe(ctx context.Context, postID string) (FeedSubscription, error) {
	return nil, errors.New("redis unavailable")
}

func TestSubscribe_FeedError(t *testing.T) {
	n := newNotifier(&failingFeed{})

	sub, err := n.Subscribe(context.Background(), "p1", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Nil(t, sub)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "community:changes:p1", ChannelName("p1"))
}
