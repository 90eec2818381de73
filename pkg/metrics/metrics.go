package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/xiebiao/library/pkg/errors"
)

// 指标在包初始化时注册到默认Registry,/metrics由promhttp.Handler()暴露
var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "正在处理的HTTP请求数",
		},
	)

	// 借阅业务
	LendingOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_operations_total",
			Help: "借阅操作总数",
		},
		[]string{"operation", "result"}, // result: success或业务错误码
	)

	LendingOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lending_operation_duration_seconds",
			Help:    "借阅操作耗时（秒，含事务）",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	ArchiveDuplicatesCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_duplicates_collapsed_total",
			Help: "归档时清理的重复历史记录数",
		},
	)

	// 库存缓存
	InventoryCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_cache_requests_total",
			Help: "库存缓存查询次数",
		},
		[]string{"result"}, // hit/miss/error
	)

	// 熔断器
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "熔断器请求总数",
		},
		[]string{"name", "result"}, // success/failure/rejected
	)

	// 消息
	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "消息发布总数",
		},
		[]string{"routing_key", "result"},
	)
)

// ObserveLending 记录一次借阅操作的结果和耗时
func ObserveLending(operation string, start time.Time, err error) {
	LendingOperationsTotal.WithLabelValues(operation, ResultLabel(err)).Inc()
	LendingOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ResultLabel 成功为success,AppError取错误码,其余为error
func ResultLabel(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strconv.Itoa(appErr.Code)
	}
	return "error"
}
