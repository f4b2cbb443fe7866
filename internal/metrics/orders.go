package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций движка заказов.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// OrderMetrics содержит метрики жизненного цикла заказа.
type OrderMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	published  *prometheus.CounterVec
	retries    prometheus.Counter
}

// NewOrderMetrics регистрирует метрики заказов в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в заданном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_operations_total",
			Help: "Order lifecycle operations grouped by operation and result.",
		}, []string{"operation", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_operation_duration_seconds",
			Help:    "Duration of order lifecycle operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		published: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_events_published_total",
			Help: "Events published by the order service grouped by exchange and topic.",
		}, []string{"exchange", "topic"}),
		retries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_version_retries_total",
			Help: "Order saves retried after a version conflict.",
		}),
	}
}

// ObserveOperation фиксирует результат и длительность операции.
func (m *OrderMetrics) ObserveOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPublished увеличивает счётчик опубликованных событий.
func (m *OrderMetrics) RecordPublished(exchange, topic string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(exchange, topic).Inc()
}

// RecordVersionRetry увеличивает счётчик повторов после конфликта версий.
func (m *OrderMetrics) RecordVersionRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
