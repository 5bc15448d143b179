package profile

import (
	"farm_community/internal/domain/profile/handler"
	"farm_community/internal/domain/profile/repository"
	"farm_community/internal/domain/profile/service"
	"farm_community/internal/pkg/events"
	"farm_community/internal/pkg/registry"
	"farm_community/pkg/cache"
	"farm_community/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileModule 资料与声望模块
type ProfileModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&ProfileModule{})
}

func (m *ProfileModule) Name() string {
	return "profile"
}

func (m *ProfileModule) Priority() int {
	// 社区模块依赖作者资料，优先初始化
	return 1
}

func (m *ProfileModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	repo := repository.NewProfileRepository(ctx.DB)
	profileCache := cache.NewRedisCache(ctx.Redis, "farm:")
	svc := service.NewProfileService(repo, profileCache, ctx.Config.Community.ProfileCacheTTL)
	h := handler.NewProfileHandler(svc)

	// 2. 路由注册
	setupRoutes(ctx.Router, h)

	// 3. 声望消费者，未配置 Kafka 时事件只写日志
	kc := ctx.Config.Kafka
	if len(kc.Brokers) > 0 {
		go func() {
			if err := events.Consume(ctx.Ctx, kc.Brokers, kc.Topic, kc.GroupID, svc.ApplyEvent); err != nil {
				logger.Log.Error("reputation consumer stopped", zap.Error(err))
			}
		}()
	}

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.ProfileHandler) {
	r.GET("/profiles/:id", h.GetProfile)
}
