package registry

import (
	"context"
	"fmt"
	"sort"

	"farm_community/internal/pkg/config"
	"farm_community/internal/pkg/events"
	"farm_community/internal/pkg/push"
	"farm_community/internal/pkg/uploader"
	"farm_community/internal/pkg/worker"
	"farm_community/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	// Ctx 进程生命周期，后台消费者随之退出
	Ctx       context.Context
	Config    config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Router    *gin.Engine
	Uploader  uploader.Uploader
	Publisher events.Publisher
	Pusher    push.PushService // 未配置推送时为 nil
	Workers   *worker.WorkerPool
	Metrics   *metrics.MetricsCollector
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// Registry 模块注册表
type Registry struct {
	modules map[string]Module
}

func New() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register 注册模块，同名模块后注册的覆盖先注册的
func (r *Registry) Register(module Module) {
	r.modules[module.Name()] = module
}

// Modules 按优先级返回模块，优先级相同时按名称排序
func (r *Registry) Modules() []Module {
	modules := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})
	return modules
}

// InitModules 按优先级初始化所有模块
func (r *Registry) InitModules(ctx *ModuleContext) error {
	for _, module := range r.Modules() {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
	}
	return nil
}

// defaultRegistry 全局模块注册表，各模块在 init() 中注册
var defaultRegistry = New()

// Register 注册模块
func Register(module Module) {
	defaultRegistry.Register(module)
}

// GetModules 获取所有已注册的模块
func GetModules() []Module {
	return defaultRegistry.Modules()
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	return defaultRegistry.InitModules(ctx)
}
