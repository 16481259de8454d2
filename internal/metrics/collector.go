// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义函数宿主的关键指标（调用、错误、触发器消息、文档写入），保持各模块标签一致。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装函数宿主的指标集合。
// 所有辅助方法都允许在 nil 接收者上调用，未启用指标时调用方无需判空。
type Metrics struct {
	registry prometheus.Gatherer

	// InvocationsTotal 函数调用总次数
	// 标签: function, trigger, status
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration 函数调用耗时直方图（单位：毫秒）
	// 标签: function, trigger
	InvocationDuration *prometheus.HistogramVec

	// InvocationErrors 调用错误计数，按错误类别（decode/config/downstream/routing/unknown）聚合
	// 标签: function, error_type
	InvocationErrors *prometheus.CounterVec

	// DocumentsInserted 成功写入的文档数
	// 标签: store
	DocumentsInserted *prometheus.CounterVec

	// TriggerMessages 触发器收到的消息数
	// 标签: trigger, result (ack/nak/poison/error)
	TriggerMessages *prometheus.CounterVec
}

// NewMetrics 在给定的注册表上创建并注册指标。
// reg 为 nil 时使用全局默认注册表。
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		registry: gatherer,
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of function invocations",
			},
			[]string{"function", "trigger", "status"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_ms",
				Help:      "Function invocation duration in milliseconds",
				Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"function", "trigger"},
		),
		InvocationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_errors_total",
				Help:      "Total number of invocation errors",
			},
			[]string{"function", "error_type"},
		),
		DocumentsInserted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_inserted_total",
				Help:      "Total number of documents inserted into the document store",
			},
			[]string{"store"},
		),
		TriggerMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_messages_total",
				Help:      "Total number of messages received by self-hosted triggers",
			},
			[]string{"trigger", "result"},
		),
	}
}

// RecordInvocation 记录一次函数调用的统计信息。
func (m *Metrics) RecordInvocation(function, trigger, status string, durationMs float64) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(function, trigger, status).Inc()
	m.InvocationDuration.WithLabelValues(function, trigger).Observe(durationMs)
}

// RecordError 记录一次调用错误（按 error_type 聚合）。
func (m *Metrics) RecordError(function, errorType string) {
	if m == nil {
		return
	}
	m.InvocationErrors.WithLabelValues(function, errorType).Inc()
}

// RecordDocumentInserted 记录一次成功的文档写入。
func (m *Metrics) RecordDocumentInserted(store string) {
	if m == nil {
		return
	}
	m.DocumentsInserted.WithLabelValues(store).Inc()
}

// RecordTriggerMessage 记录触发器对一条消息的处理结果。
func (m *Metrics) RecordTriggerMessage(trigger, result string) {
	if m == nil {
		return
	}
	m.TriggerMessages.WithLabelValues(trigger, result).Inc()
}

// Handler 返回暴露本组指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
