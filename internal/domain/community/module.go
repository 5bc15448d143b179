package community

import (
	"farm_community/internal/domain/community/handler"
	"farm_community/internal/domain/community/realtime"
	"farm_community/internal/domain/community/repository"
	"farm_community/internal/domain/community/service"
	profileRepo "farm_community/internal/domain/profile/repository"
	profileService "farm_community/internal/domain/profile/service"
	"farm_community/internal/pkg/registry"
	"farm_community/pkg/cache"
)

// CommunityModule 社区讨论模块
type CommunityModule struct{}

func init() {
	registry.Register(&CommunityModule{})
}

func (m *CommunityModule) Name() string {
	return "community"
}

func (m *CommunityModule) Priority() int {
	return 10
}

func (m *CommunityModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config.Community

	// 1. 依赖注入
	redisCache := cache.NewRedisCache(ctx.Redis, "farm:")
	authors := profileService.NewProfileService(profileRepo.NewProfileRepository(ctx.DB), redisCache, cfg.ProfileCacheTTL)
	feed := realtime.NewRedisFeed(ctx.Redis)
	dispatcher := service.NewDispatcher(ctx.Workers, ctx.Publisher, ctx.Pusher)

	postRepo := repository.NewPostRepository(ctx.DB)
	commentRepo := repository.NewCommentRepository(ctx.DB)
	reactionRepo := repository.NewReactionRepository(ctx.DB)
	viewRepo := repository.NewViewRepository(ctx.DB)

	posts := service.NewPostService(postRepo, viewRepo, ctx.Uploader, dispatcher, feed, ctx.Metrics, service.PostOptions{
		UploadConcurrency: cfg.UploadConcurrency,
		MaxUploadBytes:    cfg.MaxUploadBytes,
	})
	reactions := service.NewReactionService(reactionRepo, postRepo, commentRepo, feed, dispatcher, ctx.Metrics)
	comments := service.NewCommentService(commentRepo, postRepo, posts, reactions, authors, feed, dispatcher, ctx.Metrics)
	views := service.NewViewService(viewRepo, redisCache, cfg.ViewDedupTTL, ctx.Metrics)
	notifier := realtime.NewNotifier(feed, ctx.Metrics)

	h := handler.NewCommunityHandler(posts, comments, reactions, views, notifier, ctx.Config.Server.AllowedOrigins)

	// 2. 路由注册
	handler.RegisterRoutes(ctx.Router, h, ctx.Config.JWT.Secret)

	return nil
}
