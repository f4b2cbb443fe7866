package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// ConsumerMetrics считает обработанные сообщения по очередям.
type ConsumerMetrics struct {
	handled   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	conflicts *prometheus.CounterVec
}

// NewConsumerMetrics регистрирует метрики потребителей в DefaultRegisterer.
func NewConsumerMetrics() *ConsumerMetrics {
	return NewConsumerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewConsumerMetricsWithRegisterer регистрирует метрики в заданном registerer.
func NewConsumerMetricsWithRegisterer(registerer prometheus.Registerer) *ConsumerMetrics {
	return &ConsumerMetrics{
		handled: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_consumer_messages_total",
			Help: "Messages handled by consumers grouped by queue and result.",
		}, []string{"queue", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_consumer_handle_duration_seconds",
			Help:    "Handler duration per queue in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		conflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_consumer_version_conflicts_total",
			Help: "Version conflicts retried by consumers grouped by queue.",
		}, []string{"queue"}),
	}
}

// Middleware оборачивает обработчик очереди сбором метрик.
// Паника помечается как ошибка и пробрасывается дальше.
func (m *ConsumerMetrics) Middleware(queue string) messaging.Middleware {
	return func(next messaging.Handler) messaging.Handler {
		if m == nil {
			return next
		}
		return func(ctx context.Context, d messaging.Delivery) (err error) {
			start := time.Now()
			result := ResultError
			defer func() {
				m.handled.WithLabelValues(queue, result).Inc()
				m.duration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
			}()

			err = next(ctx, d)
			if err == nil {
				result = ResultOK
			}
			return err
		}
	}
}

// RecordConflict увеличивает счётчик конфликтов версий для очереди.
func (m *ConsumerMetrics) RecordConflict(queue string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(queue).Inc()
}
