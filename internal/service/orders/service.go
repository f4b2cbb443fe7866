// Package orders реализует жизненный цикл заказа: предварительную проверку
// остатков и кредита при создании, переходы cancel/ship/pay и публикацию
// событий об изменении статуса.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/shopflow/internal/service/orders"

// ProductGateway: синхронный доступ к товарам сервиса склада.
type ProductGateway interface {
	Get(ctx context.Context, id int64) (domain.ProductDTO, error)
}

// CustomerGateway: синхронный доступ к клиентам сервиса аккаунтов.
type CustomerGateway interface {
	Get(ctx context.Context, id int64) (domain.CustomerDTO, error)
}

// CreateOrdering определяет порядок публикации и сохранения при создании заказа.
type CreateOrdering string

const (
	// PublishFirst публикует событие completed до сохранения заказа.
	PublishFirst CreateOrdering = "publish_first"
	// PersistFirst сначала сохраняет заказ, затем публикует событие.
	PersistFirst CreateOrdering = "persist_first"
)

// Valid сообщает, известен ли режим.
func (o CreateOrdering) Valid() bool {
	return o == PublishFirst || o == PersistFirst
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики жизненного цикла.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCreateOrdering задаёт порядок publish/persist для Create.
func WithCreateOrdering(ordering CreateOrdering) Option {
	return func(s *Service) {
		if ordering.Valid() {
			s.ordering = ordering
		}
	}
}

// WithBackOff задаёт политику повторов при конфликте версий.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(s *Service) {
		if factory != nil {
			s.newBackOff = factory
		}
	}
}

// Service: движок жизненного цикла заказа.
type Service struct {
	orders     domain.OrderRepository
	products   ProductGateway
	customers  CustomerGateway
	publisher  messaging.Publisher
	logger     *log.Entry
	metrics    *metrics.OrderMetrics
	tracer     trace.Tracer
	ordering   CreateOrdering
	newBackOff func() backoff.BackOff
}

// NewService создаёт движок заказов.
func NewService(
	orders domain.OrderRepository,
	products ProductGateway,
	customers CustomerGateway,
	publisher messaging.Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		orders:     orders,
		products:   products,
		customers:  customers,
		publisher:  publisher,
		logger:     log.WithField("component", "orders"),
		tracer:     otel.Tracer(tracerName),
		ordering:   PublishFirst,
		newBackOff: DefaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultBackOff: короткий экспоненциальный backoff с ограничением попыток.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 8)
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	return order, nil
}

// List возвращает все заказы.
func (s *Service) List(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Create проверяет остатки по каждой позиции и кредит клиента, затем сохраняет
// заказ в статусе completed и публикует событие. При отказе ничего не сохраняется
// и не публикуется.
func (s *Service) Create(ctx context.Context, order *domain.Order) (created domain.Order, err error) {
	ctx, finish := s.begin(ctx, "create")
	defer func() { finish(err) }()

	if order == nil {
		return domain.Order{}, fmt.Errorf("%w: order body is required", domain.ErrValidation)
	}
	if problems := order.ValidateInvariants(); len(problems) > 0 {
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrValidation, errors.Join(problems...))
	}

	if err := s.preflight(ctx, order); err != nil {
		return domain.Order{}, err
	}

	draft := domain.Order{
		CustomerID: order.CustomerID,
		Lines:      append([]domain.OrderLine(nil), order.Lines...),
		Status:     domain.OrderStatusCompleted,
	}

	if s.ordering == PersistFirst {
		created, err = s.persist(ctx, draft)
		if err != nil {
			return domain.Order{}, err
		}
		if err := s.publishStatus(ctx, created); err != nil {
			return created, err
		}
	} else {
		if err := s.publishStatus(ctx, draft); err != nil {
			return domain.Order{}, err
		}
		created, err = s.persist(ctx, draft)
		if err != nil {
			s.logger.WithError(err).WithField("customer_id", draft.CustomerID).
				Error("order event published but order was not persisted")
			return domain.Order{}, err
		}
	}

	s.logger.WithFields(log.Fields{
		"order_id":    created.ID,
		"customer_id": created.CustomerID,
		"lines":       len(created.Lines),
	}).Info("order created")
	return created, nil
}

// preflight выполняет проверки последовательно и останавливается на первой ошибке.
func (s *Service) preflight(ctx context.Context, order *domain.Order) error {
	for _, line := range order.Lines {
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			if domain.IsNotFound(err) {
				return fmt.Errorf("%w: product %d: %w", domain.ErrInsufficientStock, line.ProductID, err)
			}
			return fmt.Errorf("lookup product %d: %w", line.ProductID, err)
		}
		if available := product.ItemsInStock - product.ItemsReserved; line.Quantity > available {
			return fmt.Errorf("%w: product %d requested %d, available %d",
				domain.ErrInsufficientStock, line.ProductID, line.Quantity, available)
		}
	}

	customer, err := s.customers.Get(ctx, order.CustomerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return fmt.Errorf("%w: customer %d: %w", domain.ErrCreditRejected, order.CustomerID, err)
		}
		return fmt.Errorf("lookup customer %d: %w", order.CustomerID, err)
	}
	if customer.CreditStanding < 0 {
		return fmt.Errorf("%w: customer %d credit standing %d",
			domain.ErrCreditRejected, order.CustomerID, customer.CreditStanding)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, order domain.Order) (domain.Order, error) {
	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: create order: %w", domain.ErrPersistence, err)
	}
	return created, nil
}

// Cancel переводит заказ в cancelled. Повторная отмена запрещена.
func (s *Service) Cancel(ctx context.Context, id int64) (err error) {
	ctx, finish := s.begin(ctx, "cancel", attribute.Int64("order.id", id))
	defer func() { finish(err) }()

	_, err = s.transition(ctx, id, domain.OrderStatusCancelled, nil)
	return err
}

// Ship переводит заказ в shipped.
func (s *Service) Ship(ctx context.Context, id int64) (err error) {
	ctx, finish := s.begin(ctx, "ship", attribute.Int64("order.id", id))
	defer func() { finish(err) }()

	_, err = s.transition(ctx, id, domain.OrderStatusShipped, nil)
	return err
}

// Pay переводит заказ в paid и публикует списание кредита на сумму
// Σ price×quantity по актуальным ценам товаров.
func (s *Service) Pay(ctx context.Context, id int64) (err error) {
	ctx, finish := s.begin(ctx, "pay", attribute.Int64("order.id", id))
	defer func() { finish(err) }()

	var amount int64
	paid, err := s.transition(ctx, id, domain.OrderStatusPaid, func(order domain.Order) error {
		var priceErr error
		amount, priceErr = s.paidAmount(ctx, order)
		return priceErr
	})
	if err != nil {
		return err
	}

	msg := messaging.CreditStandingChangedMessage{
		CustomerID: paid.CustomerID,
		PaidAmount: amount,
		Status:     string(domain.OrderStatusPaid),
	}
	if err := messaging.PublishMessage(ctx, s.publisher, messaging.ExchangeCredit, messaging.TopicPaid, msg); err != nil {
		return fmt.Errorf("%w: publish credit change: %w", domain.ErrTransport, err)
	}
	s.metrics.RecordPublished(messaging.ExchangeCredit, messaging.TopicPaid)
	return nil
}

func (s *Service) paidAmount(ctx context.Context, order domain.Order) (int64, error) {
	var total int64
	for _, line := range order.Lines {
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			return 0, fmt.Errorf("%w: price product %d: %w", domain.ErrTransport, line.ProductID, err)
		}
		total += product.Price * int64(line.Quantity)
	}
	return total, nil
}

// transition загружает заказ, выполняет prepare до любых изменений, сохраняет
// новый статус с повтором при конфликте версий и публикует событие.
// Если публикация не удалась, сохранённый статус не откатывается.
func (s *Service) transition(
	ctx context.Context,
	id int64,
	next domain.OrderStatus,
	prepare func(domain.Order) error,
) (domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, err)
	}
	if !order.Status.CanTransitionTo(next) {
		return domain.Order{}, fmt.Errorf("%w: order %d is %s, cannot become %s",
			domain.ErrInvalidTransition, id, order.Status, next)
	}
	if prepare != nil {
		if err := prepare(order); err != nil {
			return domain.Order{}, err
		}
	}

	saved, err := s.saveStatus(ctx, order, next)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.publishStatus(ctx, saved); err != nil {
		return saved, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": saved.ID,
		"status":   saved.Status,
	}).Info("order status changed")
	return saved, nil
}

func (s *Service) saveStatus(ctx context.Context, order domain.Order, next domain.OrderStatus) (domain.Order, error) {
	var saved domain.Order
	operation := func() error {
		order.Status = next
		var err error
		saved, err = s.orders.Save(ctx, order)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return backoff.Permanent(fmt.Errorf("%w: save order %d: %w", domain.ErrPersistence, order.ID, err))
		}

		s.metrics.RecordVersionRetry()
		fresh, getErr := s.orders.Get(ctx, order.ID)
		if getErr != nil {
			return backoff.Permanent(fmt.Errorf("reload order %d: %w", order.ID, getErr))
		}
		if !fresh.Status.CanTransitionTo(next) {
			return backoff.Permanent(fmt.Errorf("%w: order %d is %s, cannot become %s",
				domain.ErrInvalidTransition, order.ID, fresh.Status, next))
		}
		order = fresh
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		if domain.IsVersionConflict(err) {
			return domain.Order{}, fmt.Errorf("%w: save order %d: %w", domain.ErrPersistence, order.ID, err)
		}
		return domain.Order{}, err
	}
	return saved, nil
}

func (s *Service) publishStatus(ctx context.Context, order domain.Order) error {
	topic := string(order.Status)
	msg := messaging.NewOrderStatusChanged(order)
	if err := messaging.PublishMessage(ctx, s.publisher, messaging.ExchangeOrders, topic, msg); err != nil {
		return fmt.Errorf("%w: publish order %s: %w", domain.ErrTransport, topic, err)
	}
	s.metrics.RecordPublished(messaging.ExchangeOrders, topic)
	return nil
}

// begin открывает span операции и возвращает функцию завершения,
// которая фиксирует метрики и статус span.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "orders."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := metrics.ResultOK
		if err != nil {
			result = classify(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.WithError(err).WithField("operation", operation).Warn("order operation failed")
		}
		s.metrics.ObserveOperation(operation, result, time.Since(start))
		span.End()
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrPersistence):
		return metrics.ResultError
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrCreditRejected),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotFound):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
