package common

import (
	"context"
	"net/http"
	"time"

	"farm_community/internal/pkg/registry"
	"farm_community/pkg/database"
	"farm_community/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CommonModule 健康检查、指标与连接池监控
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	if ctx.DB != nil && ctx.Metrics != nil {
		sqlDB, err := ctx.DB.DB()
		if err != nil {
			return err
		}
		go database.NewPoolMonitor(sqlDB, ctx.Metrics, 15*time.Second, 80).Run(ctx.Ctx)
	}

	setupRoutes(ctx.Router, ctx.DB, ctx.Redis)
	return nil
}

func setupRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client) {
	r.GET("/healthz", healthHandler(db, rdb))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthHandler 依赖检查，任一失败返回 503
func healthHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok", "redis": "ok"}
		healthy := true
		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				checks["database"] = "unavailable"
				healthy = false
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unavailable"
				healthy = false
			}
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, checks)
			return
		}
		response.Success(c, checks)
	}
}
