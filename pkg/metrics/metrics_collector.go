package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 社区指标
	postsCreated      prometheus.Counter
	commentsCreated   *prometheus.CounterVec
	reactionsToggled  *prometheus.CounterVec
	viewsRecorded     *prometheus.CounterVec
	attachmentUploads *prometheus.CounterVec
	liveSubscriptions prometheus.Gauge
	liveRefreshes     *prometheus.CounterVec

	// 后台任务指标
	tasksTotal *prometheus.CounterVec

	// 数据库连接池
	dbConnections *prometheus.GaugeVec
	dbWaitCount   prometheus.Gauge
}

// NewMetricsCollector 创建指标收集器并注册到 reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	f := promauto.With(reg)
	return &MetricsCollector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		postsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "community_posts_created_total",
			Help: "Posts created",
		}),

		commentsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "community_comments_created_total",
				Help: "Comments created, by nesting",
			},
			[]string{"kind"},
		),

		reactionsToggled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "community_reactions_toggled_total",
				Help: "Reaction toggles, by target kind and outcome",
			},
			[]string{"target_kind", "applied"},
		),

		viewsRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "community_views_total",
				Help: "View events, by outcome (recorded, duplicate, failed)",
			},
			[]string{"outcome"},
		),

		attachmentUploads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "community_attachment_uploads_total",
				Help: "Attachment uploads, by outcome",
			},
			[]string{"outcome"},
		),

		liveSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "community_live_subscriptions",
			Help: "Open live discussion subscriptions",
		}),

		liveRefreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "community_live_refreshes_total",
				Help: "Tree refreshes triggered by change events, by outcome",
			},
			[]string{"outcome"},
		),

		tasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "background_tasks_total",
				Help: "Background tasks, by name and outcome",
			},
			[]string{"task", "outcome"},
		),

		dbConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "db_pool_connections",
				Help: "Database pool connections, by state (open, in_use, idle)",
			},
			[]string{"state"},
		),

		dbWaitCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_wait_count",
			Help: "Total number of connections waited for",
		}),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *MetricsCollector) PostCreated() { m.postsCreated.Inc() }

func (m *MetricsCollector) CommentCreated(reply bool) {
	kind := "root"
	if reply {
		kind = "reply"
	}
	m.commentsCreated.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) ReactionToggled(targetKind string, applied bool) {
	m.reactionsToggled.WithLabelValues(targetKind, strconv.FormatBool(applied)).Inc()
}

func (m *MetricsCollector) ViewRecorded(outcome string) { m.viewsRecorded.WithLabelValues(outcome).Inc() }

func (m *MetricsCollector) AttachmentUploaded(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.attachmentUploads.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) SubscriptionOpened() { m.liveSubscriptions.Inc() }
func (m *MetricsCollector) SubscriptionClosed() { m.liveSubscriptions.Dec() }

func (m *MetricsCollector) LiveRefresh(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.liveRefreshes.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) TaskFinished(task, outcome string) {
	m.tasksTotal.WithLabelValues(task, outcome).Inc()
}

// RecordDBPool 记录连接池快照
func (m *MetricsCollector) RecordDBPool(open, inUse, idle int, waitCount int64) {
	m.dbConnections.WithLabelValues("open").Set(float64(open))
	m.dbConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(idle))
	m.dbWaitCount.Set(float64(waitCount))
}

// 全局收集器，测试中为独立注册表上的实例
var globalCollector = NewMetricsCollector(prometheus.NewRegistry())

// InitMetrics 在默认注册表上初始化全局收集器，/metrics 由 promhttp 暴露
func InitMetrics() {
	globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
}

// GetGlobalCollector 获取全局收集器
func GetGlobalCollector() *MetricsCollector {
	return globalCollector
}
