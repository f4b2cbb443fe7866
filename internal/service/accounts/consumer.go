// Package accounts списывает оплаченные суммы с кредитного баланса клиентов.
package accounts

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

// Binding: очередь сервиса аккаунтов на обменнике кредита.
var Binding = messaging.Binding{
	Exchange: messaging.ExchangeCredit,
	Queue:    messaging.QueueAccountsPaid,
	Topic:    messaging.TopicPaid,
}

// RepositoryProvider выдаёт репозиторий клиентов на время одной обработки.
type RepositoryProvider func(ctx context.Context) (repo domain.CustomerRepository, release func(), err error)

// Shared возвращает провайдер, отдающий один и тот же репозиторий.
func Shared(repo domain.CustomerRepository) RepositoryProvider {
	return func(context.Context) (domain.CustomerRepository, func(), error) {
		return repo, func() {}, nil
	}
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
	return func(c *Consumer) { c.metrics = m }
}

// WithBackOff задаёт политику повторов при конфликте версий.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Consumer) {
		if factory != nil {
			c.newBackOff = factory
		}
	}
}

// Consumer обрабатывает CreditStandingChanged.
type Consumer struct {
	provider   RepositoryProvider
	logger     *log.Entry
	metrics    *metrics.ConsumerMetrics
	tracer     trace.Tracer
	newBackOff func() backoff.BackOff
}

// NewConsumer создаёт потребитель аккаунтов.
func NewConsumer(provider RepositoryProvider, opts ...Option) *Consumer {
	c := &Consumer{
		provider: provider,
		logger:   log.WithField("component", "accounts-consumer"),
		tracer:   otel.Tracer("github.com/vladislavdragonenkov/shopflow/internal/service/accounts"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Millisecond
			b.MaxInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe регистрирует обработчик очереди customerApiPaid.
func (c *Consumer) Subscribe(ctx context.Context, sub messaging.Subscriber, mws ...messaging.QueueMiddleware) error {
	h := messaging.Chain(c.Handle, messaging.ForQueue(Binding.Queue, mws...)...)
	if err := sub.Subscribe(ctx, Binding, h); err != nil {
		return fmt.Errorf("subscribe %s: %w", Binding, err)
	}
	return nil
}

// Handle уменьшает creditStanding клиента на paidAmount.
// Неизвестный клиент логируется, сообщение отбрасывается.
func (c *Consumer) Handle(ctx context.Context, d messaging.Delivery) error {
	var msg messaging.CreditStandingChangedMessage
	if err := d.Decode(&msg); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "accounts.paid", trace.WithAttributes(
		attribute.Int64("customer.id", msg.CustomerID),
		attribute.String("messaging.message_id", d.ID),
	))
	defer span.End()

	repo, done, err := c.provider(ctx)
	if err != nil {
		return fmt.Errorf("acquire customer repository: %w", err)
	}
	defer done()

	operation := func() error {
		customer, err := repo.Get(ctx, msg.CustomerID)
		if err != nil {
			return backoff.Permanent(err)
		}
		customer.CreditStanding -= msg.PaidAmount
		if _, err := repo.Save(ctx, customer); err != nil {
			if domain.IsVersionConflict(err) {
				c.metrics.RecordConflict(Binding.Queue)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
	switch {
	case err == nil:
		c.logger.WithFields(log.Fields{
			"customer_id": msg.CustomerID,
			"paid_amount": msg.PaidAmount,
		}).Debug("credit standing charged")
		return nil
	case domain.IsNotFound(err):
		c.logger.WithField("customer_id", msg.CustomerID).Warn("customer not found, payment dropped")
		return nil
	default:
		span.RecordError(err)
		return fmt.Errorf("charge customer %d: %w", msg.CustomerID, err)
	}
}
