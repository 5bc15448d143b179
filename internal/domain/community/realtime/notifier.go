package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"

	"go.uber.org/zap"
)

// State 订阅状态
type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unsubscribed"
	}
}

// RefreshFunc 收到变更后重新加载评论树
type RefreshFunc func(ctx context.Context) error

// Notifier 为帖子建立实时订阅
type Notifier struct {
	feed    ChangeFeed
	metrics *metrics.MetricsCollector
}

func NewNotifier(feed ChangeFeed, collector *metrics.MetricsCollector) *Notifier {
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &Notifier{feed: feed, metrics: collector}
}

// Subscription 单个帖子的实时订阅。
// 断开后不自动重连：状态回到 Unsubscribed 且 Done() 关闭，由持有者决定是否重新订阅。
type Subscription struct {
	postID   string
	onChange RefreshFunc
	feedSub  FeedSubscription
	metrics  *metrics.MetricsCollector

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe 订阅帖子变更；ctx 结束或调用 Unsubscribe 时释放通道
func (n *Notifier) Subscribe(ctx context.Context, postID string, onChange RefreshFunc) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		postID:   postID,
		onChange: onChange,
		metrics:  n.metrics,
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(StateSubscribing))

	feedSub, err := n.feed.Subscribe(subCtx, postID)
	if err != nil {
		cancel()
		s.state.Store(int32(StateUnsubscribed))
		close(s.done)
		return nil, err
	}
	s.feedSub = feedSub
	s.state.Store(int32(StateSubscribed))
	n.metrics.SubscriptionOpened()

	go s.run()
	return s, nil
}

func (s *Subscription) PostID() string { return s.postID }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Done 订阅结束 (主动退订或断开) 后关闭
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe 释放订阅，可重复调用，可在任意 goroutine 中调用
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.state.Store(int32(StateUnsubscribed))
		s.cancel()
		if err := s.feedSub.Close(); err != nil {
			logger.Log.Debug("close change feed", zap.String("post", s.postID), zap.Error(err))
		}
		s.metrics.SubscriptionClosed()
		close(s.done)
	})
}

func (s *Subscription) run() {
	defer s.Unsubscribe()

	events := s.feedSub.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				logger.Log.Info("live subscription dropped", zap.String("post", s.postID))
				return
			}
			if !s.refresh(events) {
				return
			}
		}
	}
}

// refresh 执行重新加载；刷新期间到达的事件合并为一次额外刷新。返回 false 表示通道已关闭
func (s *Subscription) refresh(events <-chan Change) bool {
	for {
		if !s.state.CompareAndSwap(int32(StateSubscribed), int32(StateRefreshing)) {
			return false
		}

		err := s.onChange(s.ctx)
		s.metrics.LiveRefresh(err == nil)
		if err != nil && s.ctx.Err() == nil {
			logger.Log.Warn("live refresh failed", zap.String("post", s.postID), zap.Error(err))
		}

		if !s.state.CompareAndSwap(int32(StateRefreshing), int32(StateSubscribed)) {
			return false
		}

		pending, open := drain(events)
		if !open {
			return false
		}
		if !pending {
			return true
		}
	}
}

// drain 取空已积压的事件
func drain(events <-chan Change) (pending bool, open bool) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return pending, false
			}
			pending = true
		default:
			return pending, true
		}
	}
}
