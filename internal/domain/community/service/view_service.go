package service

import (
	"context"
	"time"

	"farm_community/internal/domain/community/model"
	"farm_community/internal/domain/community/repository"
	"farm_community/internal/pkg/apperr"
	"farm_community/pkg/cache"
	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"

	"go.uber.org/zap"
)

// 浏览记录结果
const (
	ViewRecorded  = "recorded"
	ViewDuplicate = "duplicate"
	ViewSkipped   = "skipped"
	ViewFailed    = "failed"
)

type ViewService interface {
	// RecordView 尽力而为：同一 (帖子, 用户或会话) 在去重窗口内只记一次，失败只记录日志
	RecordView(ctx context.Context, postID, viewerID, sessionID string)
	CountViews(ctx context.Context, postID string) (int64, error)
}

type viewService struct {
	repo    repository.ViewRepository
	dedup   cache.CacheService
	ttl     time.Duration
	metrics *metrics.MetricsCollector
}

func NewViewService(repo repository.ViewRepository, dedup cache.CacheService, ttl time.Duration, collector *metrics.MetricsCollector) ViewService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if collector == nil {
		collector = metrics.GetGlobalCollector()
	}
	return &viewService{repo: repo, dedup: dedup, ttl: ttl, metrics: collector}
}

func viewKey(postID, viewerID, sessionID string) string {
	if viewerID != "" {
		return "view:" + postID + ":u:" + viewerID
	}
	return "view:" + postID + ":s:" + sessionID
}

func (s *viewService) RecordView(ctx context.Context, postID, viewerID, sessionID string) {
	outcome := s.record(ctx, postID, viewerID, sessionID)
	s.metrics.ViewRecorded(outcome)
}

func (s *viewService) record(ctx context.Context, postID, viewerID, sessionID string) string {
	if postID == "" || (viewerID == "" && sessionID == "") {
		return ViewSkipped
	}

	key := viewKey(postID, viewerID, sessionID)
	first, err := s.dedup.SetNX(ctx, key, s.ttl)
	if err != nil {
		logger.Log.Warn("view dedup failed", zap.String("post", postID), zap.Error(err))
		return ViewFailed
	}
	if !first {
		return ViewDuplicate
	}

	v := &model.View{PostID: postID, SessionID: sessionID}
	if viewerID != "" {
		v.ViewerID = &viewerID
	}
	if err := s.repo.Create(ctx, v); err != nil {
		logger.Log.Warn("record view failed", zap.String("post", postID), zap.Error(err))
		// 写入失败时释放去重键，下次浏览可再次计入
		if err := s.dedup.Delete(ctx, key); err != nil {
			logger.Log.Debug("release view key", zap.Error(err))
		}
		return ViewFailed
	}
	return ViewRecorded
}

func (s *viewService) CountViews(ctx context.Context, postID string) (int64, error) {
	n, err := s.repo.CountByPost(ctx, postID)
	if err != nil {
		return 0, apperr.Transient("count views", err)
	}
	return n, nil
}
