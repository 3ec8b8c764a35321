package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 本包集中定义所有 Prometheus 指标，业务代码直接引用包级变量。
// promauto 会在 init 时注册到默认 Registry，/metrics 由各入口暴露。

var (
	// AppInfo 携带构建版本信息的常量 gauge。
	AppInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "papastore_app_info",
		Help: "Static application info.",
	}, []string{"version"})

	// SupplierRequestsTotal 按端点与结果统计对供应商 API 的请求数。
	SupplierRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_supplier_requests_total",
		Help: "Supplier API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// SupplierRequestDuration 供应商 API 请求耗时。
	SupplierRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papastore_supplier_request_duration_seconds",
		Help:    "Supplier API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// SupplierTokenRefreshTotal 令牌刷新次数（含失败）。
	SupplierTokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_supplier_token_refresh_total",
		Help: "Supplier auth token refreshes.",
	}, []string{"outcome"})

	// SyncProductsTotal 同步过程中商品的落库结果分布。
	SyncProductsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_sync_products_total",
		Help: "Products processed during sync by outcome.",
	}, []string{"outcome"})

	// SyncRunsTotal 各同步模式的执行次数。
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_sync_runs_total",
		Help: "Sync runs by mode and status.",
	}, []string{"mode", "status"})

	// SyncDuration 一次同步运行的总耗时。
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papastore_sync_duration_seconds",
		Help:    "Wall time of a sync run.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"mode"})

	// StockUpdatesTotal 库存校验的结果分布。
	StockUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_stock_updates_total",
		Help: "Stock validation results.",
	}, []string{"outcome"})

	// EnrichAttemptsTotal 按数据源与结果统计的补全尝试。
	EnrichAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_enrich_attempts_total",
		Help: "Enrichment lookups by source and outcome.",
	}, []string{"source", "outcome"})

	// EnrichMatchScore 被采纳候选的相似度得分分布。
	EnrichMatchScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papastore_enrich_match_score",
		Help:    "Similarity score of accepted enrichment candidates.",
		Buckets: []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.9, 0.95, 1},
	})

	// EnrichQueueDepth 补全队列的深度。
	EnrichQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "papastore_enrich_queue_depth",
		Help: "Depth of the enrichment redis queues.",
	}, []string{"queue"})

	// ScrapeRequestsTotal 对外部零售站点的抓取请求数。
	ScrapeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_scrape_requests_total",
		Help: "Outbound scrape requests by source and outcome.",
	}, []string{"source", "outcome"})

	// ScrapeBlockedTotal 被目标站点拦截的次数。
	ScrapeBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_scrape_blocked_total",
		Help: "Scrape requests rejected by anti-bot measures.",
	}, []string{"source"})

	// ImageUploadsTotal 图片处理与上传的结果分布。
	ImageUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papastore_image_uploads_total",
		Help: "Image optimize-and-upload results.",
	}, []string{"outcome"})

	// RateLimitWaitDuration 抓取限流等待时长。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papastore_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a scrape rate token.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	// RateLimitTimeoutTotal 限流等待被取消或超时的次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papastore_ratelimit_timeout_total",
		Help: "Rate limit waits that were canceled or timed out.",
	})
)

// InitMetrics 设置静态指标，入口启动时调用一次。
func InitMetrics(version string) {
	if version == "" {
		version = "dev"
	}
	AppInfo.WithLabelValues(version).Set(1)
}
