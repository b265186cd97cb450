// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 服务指标集合
type Registry struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rankTotal       *prometheus.CounterVec
	rankDuration    *prometheus.HistogramVec
	rankCandidates  prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	fairnessIndex   *prometheus.GaugeVec
	coverageRate    *prometheus.GaugeVec
}

var (
	registry *Registry
	once     sync.Once
)

// GetRegistry 获取全局注册表
func GetRegistry() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry 创建独立的注册表
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hissa_http_requests_total",
			Help: "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hissa_http_request_duration_seconds",
			Help:    "HTTP请求延迟",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),
		rankTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hissa_substitute_rank_total",
			Help: "代课推荐次数",
		}, []string{"strategy", "status"}),
		rankDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hissa_substitute_rank_duration_seconds",
			Help:    "代课推荐耗时",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"strategy"}),
		rankCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hissa_substitute_candidates",
			Help:    "每次推荐返回的候选人数",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hissa_snapshot_cache_lookups_total",
			Help: "课表快照缓存查询次数",
		}, []string{"result"}),
		fairnessIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hissa_fairness_index",
			Help: "课时公平性指数",
		}, []string{"school_id"}),
		coverageRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hissa_coverage_rate",
			Help: "缺勤节次代课覆盖率",
		}, []string{"school_id"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requestTotal,
		r.requestDuration,
		r.rankTotal,
		r.rankDuration,
		r.rankCandidates,
		r.cacheLookups,
		r.fairnessIndex,
		r.coverageRate,
	)
	return r
}

// Gatherer 用于测试读取指标
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler 返回Prometheus格式的指标HTTP处理器
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRequest 记录请求指标
func (r *Registry) RecordRequest(method, path string, status int, duration time.Duration) {
	r.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveRanking 记录一次代课推荐
func (r *Registry) ObserveRanking(strategy, status string, candidates int, duration time.Duration) {
	r.rankTotal.WithLabelValues(strategy, status).Inc()
	r.rankDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	r.rankCandidates.Observe(float64(candidates))
}

// RecordCacheLookup 记录快照缓存命中情况
func (r *Registry) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// SetFairnessIndex 设置公平性指数
func (r *Registry) SetFairnessIndex(schoolID string, index float64) {
	r.fairnessIndex.WithLabelValues(scopeLabel(schoolID)).Set(index)
}

// SetCoverageRate 设置覆盖率
func (r *Registry) SetCoverageRate(schoolID string, rate float64) {
	r.coverageRate.WithLabelValues(scopeLabel(schoolID)).Set(rate)
}

func scopeLabel(schoolID string) string {
	if schoolID == "" {
		return "all"
	}
	return schoolID
}

// Handler 全局注册表的HTTP处理器
func Handler() http.Handler {
	return GetRegistry().Handler()
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	GetRegistry().RecordRequest(method, path, status, duration)
}
