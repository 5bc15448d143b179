package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// 模块在 init() 中自动注册
	_ "farm_community/internal/domain/common"
	_ "farm_community/internal/domain/community"
	_ "farm_community/internal/domain/profile"

	"farm_community/internal/pkg/config"
	"farm_community/internal/pkg/events"
	"farm_community/internal/pkg/middleware"
	"farm_community/internal/pkg/push"
	"farm_community/internal/pkg/registry"
	"farm_community/internal/pkg/uploader"
	"farm_community/internal/pkg/worker"
	"farm_community/pkg/database"
	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	config.LoadConfig()
	cfg := config.GlobalConfig

	if err := logger.InitLogger(cfg.Log); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	metrics.InitMetrics()
	collector := metrics.GetGlobalCollector()

	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		logger.Log.Fatal("connect database", zap.Error(err))
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("connect redis", zap.Error(err))
	}

	up, err := uploader.New(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("init object storage", zap.Error(err))
	}

	var publisher events.Publisher = events.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	var pusher push.PushService
	if svc, err := push.NewAliyunPushService(cfg.Push); err != nil {
		logger.Log.Warn("push disabled", zap.Error(err))
	} else if svc != nil {
		pusher = svc
	}

	workers := worker.NewWorkerPool(cfg.Community.WorkerNum, cfg.Community.WorkerQueueSize, collector)
	workers.Start()

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware(collector))
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	r.Use(middleware.RateLimitMiddleware(middleware.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitQPS), cfg.Server.RateLimitBurst)))

	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := registry.InitModules(&registry.ModuleContext{
		Ctx:       appCtx,
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Router:    r,
		Uploader:  up,
		Publisher: publisher,
		Pusher:    pusher,
		Workers:   workers,
		Metrics:   collector,
	}); err != nil {
		logger.Log.Fatal("init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Log.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("server shutdown", zap.Error(err))
	}

	// 先停消费者与后台任务，再关闭连接
	stop()
	workers.Stop()
	if err := publisher.Close(); err != nil {
		logger.Log.Warn("close event publisher", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.Log.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Log.Info("server gracefully stopped")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-Request-ID", "X-Session-ID")
	cfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
