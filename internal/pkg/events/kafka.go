package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"farm_community/pkg/logger"

	kgo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher 以 PostID 为消息键写入，同一帖子的事件保持分区内有序
type KafkaPublisher struct {
	w *kgo.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kgo.Message{Key: []byte(ev.PostID), Value: b, Time: ev.OccurredAt})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Handler 处理一条事件
type Handler func(ctx context.Context, ev Event) error

// Consume 以消费组方式读取事件直到 ctx 结束；坏消息与处理失败只记录日志
func Consume(ctx context.Context, brokers []string, topic, groupID string, handle Handler) error {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  2 * time.Second,
	})
	defer r.Close()

	logger.Log.Info("kafka consumer started", zap.String("group", groupID), zap.String("topic", topic))

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}

		var ev Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			logger.Log.Warn("kafka: bad payload", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := handle(ctx, ev); err != nil {
			logger.Log.Warn("handle community event", zap.String("type", ev.Type), zap.Error(err))
		}
	}
}
