// Package inventory применяет события о статусе заказа к счётчикам склада.
//
// Обработчики не идемпотентны: повторная доставка применяет эффект повторно.
// Дедупликация подключается снаружи через messaging.QueueMiddleware.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/shopflow/internal/service/inventory"

// RepositoryProvider выдаёт репозиторий на время одной обработки сообщения.
// release вызывается по её завершении.
type RepositoryProvider func(ctx context.Context) (repo domain.ProductRepository, release func(), err error)

// Shared возвращает провайдер, отдающий один и тот же репозиторий.
func Shared(repo domain.ProductRepository) RepositoryProvider {
	return func(context.Context) (domain.ProductRepository, func(), error) {
		return repo, func() {}, nil
	}
}

// effect изменяет счётчики товара на количество q из позиции заказа.
type effect func(p *domain.Product, q int)

func reserve(p *domain.Product, q int) {
	p.ItemsReserved += q
}

func release(p *domain.Product, q int) {
	p.ItemsReserved -= q
	p.ItemsInStock += q
}

// fulfil снимает резерв. shipped и paid применяют его оба, поэтому заказ,
// который и отгружен, и оплачен, снимает резерв дважды.
func fulfil(p *domain.Product, q int) {
	p.ItemsReserved -= q
}

type route struct {
	binding messaging.Binding
	apply   effect
}

var routes = []route{
	{messaging.Binding{Exchange: messaging.ExchangeOrders, Queue: messaging.QueueInventoryCompleted, Topic: messaging.TopicCompleted}, reserve},
	{messaging.Binding{Exchange: messaging.ExchangeOrders, Queue: messaging.QueueInventoryCancelled, Topic: messaging.TopicCancelled}, release},
	{messaging.Binding{Exchange: messaging.ExchangeOrders, Queue: messaging.QueueInventoryShipped, Topic: messaging.TopicShipped}, fulfil},
	{messaging.Binding{Exchange: messaging.ExchangeOrders, Queue: messaging.QueueInventoryPaid, Topic: messaging.TopicPaid}, fulfil},
}

// Option настраивает Consumer.
type Option func(*Consumer)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics подключает счётчик конфликтов версий.
func WithMetrics(m *metrics.ConsumerMetrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithBackOff задаёт политику повторов при конфликте версий.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Consumer) {
		if factory != nil {
			c.newBackOff = factory
		}
	}
}

// Consumer обрабатывает события заказов для сервиса склада.
type Consumer struct {
	provider   RepositoryProvider
	logger     *log.Entry
	metrics    *metrics.ConsumerMetrics
	tracer     trace.Tracer
	newBackOff func() backoff.BackOff
}

// NewConsumer создаёт потребитель склада.
func NewConsumer(provider RepositoryProvider, opts ...Option) *Consumer {
	c := &Consumer{
		provider:   provider,
		logger:     log.WithField("component", "inventory-consumer"),
		tracer:     otel.Tracer(tracerName),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// Bindings перечисляет очереди потребителя.
func (c *Consumer) Bindings() []messaging.Binding {
	out := make([]messaging.Binding, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.binding)
	}
	return out
}

// Subscribe регистрирует обработчики всех очередей склада.
func (c *Consumer) Subscribe(ctx context.Context, sub messaging.Subscriber, mws ...messaging.QueueMiddleware) error {
	for _, r := range routes {
		h := messaging.Chain(c.handler(r), messaging.ForQueue(r.binding.Queue, mws...)...)
		if err := sub.Subscribe(ctx, r.binding, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", r.binding, err)
		}
	}
	return nil
}

// Handler возвращает обработчик для темы заказа; ok=false для неизвестной темы.
func (c *Consumer) Handler(topic string) (messaging.Handler, bool) {
	for _, r := range routes {
		if r.binding.Topic == topic {
			return c.handler(r), true
		}
	}
	return nil, false
}

func (c *Consumer) handler(r route) messaging.Handler {
	return func(ctx context.Context, d messaging.Delivery) error {
		var msg messaging.OrderStatusChangedMessage
		if err := d.Decode(&msg); err != nil {
			return err
		}

		ctx, span := c.tracer.Start(ctx, "inventory."+r.binding.Topic, trace.WithAttributes(
			attribute.String("messaging.queue", r.binding.Queue),
			attribute.String("messaging.message_id", d.ID),
		))
		defer span.End()

		repo, done, err := c.provider(ctx)
		if err != nil {
			return fmt.Errorf("acquire product repository: %w", err)
		}
		defer done()

		for _, line := range msg.Lines() {
			if err := c.adjust(ctx, repo, r, line); err != nil {
				span.RecordError(err)
				return err
			}
		}
		return nil
	}
}

// adjust применяет эффект к одной позиции с повтором при конфликте версий.
func (c *Consumer) adjust(ctx context.Context, repo domain.ProductRepository, r route, line domain.OrderLine) error {
	operation := func() error {
		product, err := repo.Get(ctx, line.ProductID)
		if err != nil {
			return backoff.Permanent(err)
		}
		r.apply(&product, line.Quantity)
		if _, err := repo.Save(ctx, product); err != nil {
			if domain.IsVersionConflict(err) {
				c.metrics.RecordConflict(r.binding.Queue)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
	switch {
	case err == nil:
		return nil
	case domain.IsNotFound(err):
		c.logger.WithFields(log.Fields{
			"queue":      r.binding.Queue,
			"product_id": line.ProductID,
		}).Warn("product not found, line skipped")
		return nil
	default:
		return fmt.Errorf("adjust product %d: %w", line.ProductID, err)
	}
}
