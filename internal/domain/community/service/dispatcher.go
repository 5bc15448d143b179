package service

import (
	"context"
	"time"

	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/pkg/events"
	"farm_community/internal/pkg/push"
	"farm_community/internal/pkg/worker"
	"farm_community/pkg/logger"

	"go.uber.org/zap"
)

const inlineTimeout = 10 * time.Second

// Dispatcher 异步执行尽力而为的副作用：领域事件、回复推送
type Dispatcher struct {
	workers   *worker.WorkerPool
	publisher events.Publisher
	pusher    push.PushService
}

// NewDispatcher workers 为空时同步执行；pusher 为空时不推送
func NewDispatcher(workers *worker.WorkerPool, publisher events.Publisher, pusher push.PushService) *Dispatcher {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	return &Dispatcher{workers: workers, publisher: publisher, pusher: pusher}
}

// Emit 发布社区事件
func (d *Dispatcher) Emit(ev events.Event) {
	if d == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	d.submit("event:"+ev.Type, func(ctx context.Context) error {
		return d.publisher.Publish(ctx, ev)
	})
}

// Notify 推送通知给用户
func (d *Dispatcher) Notify(accountID, title, body string, ext map[string]string) {
	if d == nil || d.pusher == nil || accountID == "" {
		return
	}
	d.submit("push:reply", func(ctx context.Context) error {
		return d.pusher.PushToAccount(accountID, title, body, ext)
	})
}

func (d *Dispatcher) submit(name string, run func(ctx context.Context) error) {
	if d.workers == nil {
		ctx, cancel := context.WithTimeout(context.Background(), inlineTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			logger.Log.Warn("side effect failed", zap.String("task", name), zap.Error(err))
		}
		return
	}
	// 入队失败由 worker 记录死信日志
	d.workers.AddTask(worker.Task{Name: name, Run: run})
}

// publishChange 广播变更，失败只记录日志
func publishChange(ctx context.Context, feed ChangePublisher, ch realtime.Change) {
	if feed == nil {
		return
	}
	if err := feed.Publish(ctx, ch); err != nil {
		logger.Log.Warn("publish change", zap.String("post", ch.PostID), zap.String("table", ch.Table), zap.Error(err))
	}
}
