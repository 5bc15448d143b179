package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"

	"go.uber.org/zap"
)

// Task 后台任务 (推送通知、领域事件等尽力而为的副作用)
type Task struct {
	Name  string
	Run   func(ctx context.Context) error
	Retry int // 已重试次数
}

type WorkerPool struct {
	TaskQueue   chan Task
	WorkerNum   int
	MaxRetry    int           // 最大重试次数
	Backoff     time.Duration // 第 n 次重试前等待 n*Backoff
	TaskTimeout time.Duration

	metrics *metrics.MetricsCollector
	stopCh  chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
	once    sync.Once
}

func NewWorkerPool(workerNum int, bufferSize int, collector *metrics.MetricsCollector) *WorkerPool {
	return &WorkerPool{
		TaskQueue:   make(chan Task, bufferSize),
		WorkerNum:   workerNum,
		MaxRetry:    3, // 最多重试3次
		Backoff:     time.Second,
		TaskTimeout: 10 * time.Second,
		metrics:     collector,
		stopCh:      make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Log.Info("worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止接收新任务，处理完队列中剩余任务后返回；等待中的重试被丢弃
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		p.stopped.Store(true)
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.TaskQueue:
			p.processTask(id, task)
		case <-p.stopCh:
			for {
				select {
				case task := <-p.TaskQueue:
					p.processTask(id, task)
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) processTask(id int, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.TaskTimeout)
	err := task.Run(ctx)
	cancel()

	if err == nil {
		p.metrics.TaskFinished(task.Name, "ok")
		return
	}

	logger.Log.Warn("background task failed",
		zap.Int("worker", id),
		zap.String("task", task.Name),
		zap.Int("attempt", task.Retry+1),
		zap.Error(err),
	)

	// 如果未达到最大重试次数，延迟后重新入队
	if task.Retry < p.MaxRetry && !p.stopped.Load() {
		task.Retry++
		p.metrics.TaskFinished(task.Name, "retry")
		time.AfterFunc(time.Duration(task.Retry)*p.Backoff, func() {
			p.AddTask(task)
		})
		return
	}
	p.logFailedTask(task, err)
}

func (p *WorkerPool) logFailedTask(task Task, err error) {
	p.metrics.TaskFinished(task.Name, "dropped")
	logger.Log.Error("[DeadLetter] task failed permanently",
		zap.String("task", task.Name),
		zap.Int("retries", task.Retry),
		zap.Error(err),
	)
}

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// AddTask 非阻塞入队，队列已满或已停止时丢弃并返回 false
func (p *WorkerPool) AddTask(task Task) bool {
	if p.stopped.Load() {
		p.logFailedTask(task, ErrPoolStopped)
		return false
	}
	select {
	case p.TaskQueue <- task:
		return true
	default:
		p.logFailedTask(task, ErrQueueFull)
		return false
	}
}
