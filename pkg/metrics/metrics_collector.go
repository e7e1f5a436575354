package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 审核流水线指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 队列指标
	queueDepth        *prometheus.GaugeVec
	claimsTotal       *prometheus.CounterVec
	claimsReleased    *prometheus.CounterVec
	queueWaitDuration *prometheus.HistogramVec

	// 审裁服务指标
	oracleCallDuration *prometheus.HistogramVec
	oracleErrorsTotal  *prometheus.CounterVec

	// 账本指标
	ledgerEventsTotal *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moderation_queue_depth",
				Help: "Number of pending entries per queue",
			},
			[]string{"queue_type"},
		),

		claimsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_queue_claims_total",
				Help: "Claim attempts per queue and result (won/lost)",
			},
			[]string{"queue_type", "result"},
		),

		claimsReleased: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_queue_released_total",
				Help: "Entries released back to pending (worker crash or oracle timeout)",
			},
			[]string{"queue_type"},
		),

		queueWaitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moderation_queue_wait_seconds",
				Help:    "Time entries spend waiting before being claimed",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"queue_type"},
		),

		oracleCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_call_duration_seconds",
				Help:    "Latency of Moderator oracle calls",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		oracleErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_errors_total",
				Help: "Moderator oracle call failures",
			},
			[]string{"operation"},
		),

		ledgerEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loyalty_ledger_events_total",
				Help: "Moderation events appended to the loyalty ledger",
			},
			[]string{"event_type", "outcome"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, durationSec float64) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// SetQueueDepth 上报队列深度
func (m *MetricsCollector) SetQueueDepth(queueType string, depth float64) {
	m.queueDepth.WithLabelValues(queueType).Set(depth)
}

// RecordClaim 记录一次认领尝试
func (m *MetricsCollector) RecordClaim(queueType string, won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	m.claimsTotal.WithLabelValues(queueType, result).Inc()
}

// RecordRelease 记录一次认领释放
func (m *MetricsCollector) RecordRelease(queueType string) {
	m.claimsReleased.WithLabelValues(queueType).Inc()
}

// RecordQueueWait 记录排队等待时间
func (m *MetricsCollector) RecordQueueWait(queueType string, seconds float64) {
	m.queueWaitDuration.WithLabelValues(queueType).Observe(seconds)
}

// RecordOracleCall 记录审裁服务调用
func (m *MetricsCollector) RecordOracleCall(operation string, seconds float64, err error) {
	m.oracleCallDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.oracleErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// RecordLedgerEvent 记录账本事件
func (m *MetricsCollector) RecordLedgerEvent(eventType, outcome string) {
	m.ledgerEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// Default 全局默认收集器
var Default = NewMetricsCollector()
