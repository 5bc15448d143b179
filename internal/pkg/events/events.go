// Package events carries community domain events (post created, comment created, reaction applied)
// to consumers such as the reputation ledger.
package events

import (
	"context"
	"time"

	"farm_community/pkg/logger"

	"go.uber.org/zap"
)

// 事件类型
const (
	TypePostCreated     = "post.created"
	TypeCommentCreated  = "comment.created"
	TypeReactionApplied = "reaction.applied"
)

// Event 社区领域事件
type Event struct {
	Type string `json:"type"`
	// ActorID 触发事件的用户
	ActorID string `json:"actorId"`
	// OwnerID 被作用内容的作者 (点赞时为被赞内容的作者)
	OwnerID    string    `json:"ownerId,omitempty"`
	PostID     string    `json:"postId"`
	TargetID   string    `json:"targetId,omitempty"`
	Expert     bool      `json:"expert,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher 未配置 Kafka 时使用，只写日志
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, ev Event) error {
	logger.Log.Info("community event",
		zap.String("type", ev.Type),
		zap.String("actor", ev.ActorID),
		zap.String("post", ev.PostID),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
