// Package realtime delivers per-post change events (comments and reactions) to live subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"farm_community/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 变更操作
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Change 帖子下评论或点赞的一次变更
type Change struct {
	PostID string `json:"postId"`
	Table  string `json:"table"` // comments / reactions / posts
	Op     string `json:"op"`
	RowID  string `json:"rowId"`
}

// ChangeFeed 按帖子过滤的变更通道
type ChangeFeed interface {
	Publish(ctx context.Context, ch Change) error
	Subscribe(ctx context.Context, postID string) (FeedSubscription, error)
}

// FeedSubscription 事件通道关闭表示订阅已断开
type FeedSubscription interface {
	Events() <-chan Change
	Close() error
}

// ErrFeedClosed 变更通道已关闭
var ErrFeedClosed = errors.New("change feed closed")

const eventBuffer = 16

// ChannelName 帖子变更的 Redis 频道
func ChannelName(postID string) string {
	return "community:changes:" + postID
}

// RedisFeed 基于 Redis Pub/Sub 的变更通道，多实例部署时共享
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, ch Change) error {
	b, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, ChannelName(ch.PostID), b).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, postID string) (FeedSubscription, error) {
	ps := f.client.Subscribe(ctx, ChannelName(postID))
	// 等待订阅确认，连接失败在此返回
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	s := &redisSubscription{ps: ps, events: make(chan Change, eventBuffer), done: make(chan struct{})}
	go s.forward()
	return s, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan Change
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.events)
	for msg := range s.ps.Channel() {
		var ch Change
		if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
			logger.Log.Warn("bad change payload", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		select {
		case s.events <- ch:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan Change { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// MemoryFeed 进程内变更通道，单实例部署与测试使用
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (f *MemoryFeed) Publish(ctx context.Context, ch Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[ch.PostID] {
		select {
		case s.events <- ch:
		default:
			// 订阅方积压时丢弃，积压本身已保证还会刷新
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, postID string) (FeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &memorySubscription{feed: f, postID: postID, events: make(chan Change, eventBuffer)}
	if f.subs[postID] == nil {
		f.subs[postID] = make(map[*memorySubscription]struct{})
	}
	f.subs[postID][s] = struct{}{}
	return s, nil
}

// Drop 模拟网络断开：关闭该帖子的全部订阅
func (f *MemoryFeed) Drop(postID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[postID] {
		s.closeLocked()
	}
}

// Subscribers 当前订阅数
func (f *MemoryFeed) Subscribers(postID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[postID])
}

type memorySubscription struct {
	feed   *MemoryFeed
	postID string
	events chan Change
	closed bool
}

func (s *memorySubscription) Events() <-chan Change { return s.events }

func (s *memorySubscription) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *memorySubscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
	delete(s.feed.subs[s.postID], s)
	if len(s.feed.subs[s.postID]) == 0 {
		delete(s.feed.subs, s.postID)
	}
}
