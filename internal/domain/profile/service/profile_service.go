package service

import (
	"context"
	"encoding/json"
	"time"

	"farm_community/internal/domain/profile/model"
	"farm_community/internal/domain/profile/repository"
	"farm_community/internal/pkg/apperr"
	"farm_community/internal/pkg/events"
	"farm_community/pkg/cache"
	"farm_community/pkg/logger"

	"go.uber.org/zap"
)

// 缓存键常量
const ProfileCacheKeyPrefix = "profile:"

// 声望积分规则
const (
	PointsPost         = 5
	PointsComment      = 2
	PointsExpertAnswer = 5
	PointsReaction     = 1
)

// ProfileService 资料与声望
type ProfileService interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	// Lookup 批量解析作者信息：一次缓存 MGET，未命中的一次 IN 查询
	Lookup(ctx context.Context, ids []string) (map[string]model.AuthorInfo, error)
	// ApplyEvent 按社区事件累加声望积分
	ApplyEvent(ctx context.Context, ev events.Event) error
}

type profileService struct {
	repo  repository.ProfileRepository
	cache cache.CacheService
	ttl   time.Duration
}

// NewProfileService 创建带缓存的资料服务
func NewProfileService(repo repository.ProfileRepository, c cache.CacheService, ttl time.Duration) ProfileService {
	return &profileService{repo: repo, cache: c, ttl: ttl}
}

func (s *profileService) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("profile not found", err)
	}
	return p, nil
}

func (s *profileService) Lookup(ctx context.Context, ids []string) (map[string]model.AuthorInfo, error) {
	result := make(map[string]model.AuthorInfo, len(ids))
	unique := dedupe(ids)
	if len(unique) == 0 {
		return result, nil
	}

	keys := make([]string, len(unique))
	for i, id := range unique {
		keys[i] = ProfileCacheKeyPrefix + id
	}

	var missing []string
	cached, err := s.cache.GetMultiple(ctx, keys)
	if err != nil {
		// 缓存不可用时全部回源
		logger.Log.Warn("profile cache read failed", zap.Error(err))
		cached = make([][]byte, len(unique))
	}
	for i, id := range unique {
		var info model.AuthorInfo
		if cached[i] != nil && json.Unmarshal(cached[i], &info) == nil {
			result[id] = info
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return result, nil
	}

	profiles, err := s.repo.FindByIDs(ctx, missing)
	if err != nil {
		return nil, apperr.Transient("load author profiles", err)
	}

	fill := make(map[string]interface{}, len(profiles))
	for i := range profiles {
		info := profiles[i].Info()
		result[info.ID] = info
		fill[ProfileCacheKeyPrefix+info.ID] = info
	}
	if err := s.cache.SetMultiple(ctx, fill, s.ttl); err != nil {
		logger.Log.Warn("profile cache fill failed", zap.Error(err))
	}

	// 资料缺失的作者使用占位信息，不写缓存
	for _, id := range missing {
		if _, ok := result[id]; !ok {
			result[id] = model.UnknownAuthor(id)
		}
	}
	return result, nil
}

func (s *profileService) ApplyEvent(ctx context.Context, ev events.Event) error {
	var (
		userID string
		delta  int64
	)
	switch ev.Type {
	case events.TypePostCreated:
		userID, delta = ev.ActorID, PointsPost
	case events.TypeCommentCreated:
		userID, delta = ev.ActorID, PointsComment
		if ev.Expert {
			delta += PointsExpertAnswer
		}
	case events.TypeReactionApplied:
		// 给自己点赞不加分
		if ev.OwnerID == "" || ev.OwnerID == ev.ActorID {
			return nil
		}
		userID, delta = ev.OwnerID, PointsReaction
	default:
		return nil
	}
	if userID == "" {
		return nil
	}

	if err := s.repo.AddPoints(ctx, userID, delta); err != nil {
		return apperr.Transient("add reputation points", err)
	}
	// 积分不在作者信息中，缓存无需失效
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
