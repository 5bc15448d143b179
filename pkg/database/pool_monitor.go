package database

import (
	"context"
	"database/sql"
	"time"

	"farm_community/pkg/logger"
	"farm_community/pkg/metrics"

	"go.uber.org/zap"
)

// StatsSource 提供连接池统计，*sql.DB 满足该接口
type StatsSource interface {
	Stats() sql.DBStats
}

// PoolMonitor 定期采集连接池状态并写入 Prometheus
type PoolMonitor struct {
	db        StatsSource
	collector *metrics.MetricsCollector
	interval  time.Duration
	// 打开连接数超过该值时告警，0 表示不告警
	alertThreshold int
	lastWait       time.Duration
}

// NewPoolMonitor 创建连接池监控器
func NewPoolMonitor(db StatsSource, collector *metrics.MetricsCollector, interval time.Duration, alertThreshold int) *PoolMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PoolMonitor{
		db:             db,
		collector:      collector,
		interval:       interval,
		alertThreshold: alertThreshold,
	}
}

// Run 阻塞运行直到 ctx 取消
func (pm *PoolMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.collect()
	for {
		select {
		case <-ticker.C:
			pm.collect()
		case <-ctx.Done():
			return
		}
	}
}

// collect 采集一次快照
func (pm *PoolMonitor) collect() {
	stats := pm.db.Stats()
	pm.collector.RecordDBPool(stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount)

	if pm.alertThreshold > 0 && stats.OpenConnections > pm.alertThreshold {
		logger.Log.Warn("database pool connections high",
			zap.Int("open", stats.OpenConnections),
			zap.Int("threshold", pm.alertThreshold))
	}

	// 两次采集之间的等待时间超过 5 秒视为连接池不足
	waited := stats.WaitDuration - pm.lastWait
	pm.lastWait = stats.WaitDuration
	if waited > 5*time.Second {
		logger.Log.Warn("database pool wait time high",
			zap.Duration("waited", waited),
			zap.Int64("wait_count", stats.WaitCount))
	}
}
