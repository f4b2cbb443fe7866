// Package rabbitmq реализует шину сообщений поверх RabbitMQ topic exchange:
// долговременная именованная очередь на каждую подписку, persistent-публикация,
// автоматическое подтверждение доставки.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// ExchangeType: тип всех exchange шины.
const ExchangeType = "topic"

// ErrClosed возвращается при работе с закрытой шиной.
var ErrClosed = errors.New("rabbitmq bus is closed")

// Bus: реализация messaging.Bus на amqp091.
type Bus struct {
	conn *amqp.Connection

	pubMu sync.Mutex
	pubCh *amqp.Channel

	mu        sync.Mutex
	declared  map[string]bool
	consumers []*amqp.Channel
	closed    bool

	wg     sync.WaitGroup
	logger *log.Entry
}

type options struct {
	attempts int
	interval time.Duration
	logger   *log.Entry
}

// Option настраивает подключение.
type Option func(*options)

// WithDialRetry задаёт число попыток подключения и паузу между ними.
func WithDialRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if interval > 0 {
			o.interval = interval
		}
	}
}

// WithLogger задаёт логгер шины.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Dial подключается к брокеру с повторами (брокер в контейнере поднимается не сразу)
// и открывает канал публикации.
func Dial(url string, opts ...Option) (*Bus, error) {
	cfg := options{
		attempts: 5,
		interval: 2 * time.Second,
		logger:   log.WithField("component", "rabbitmq-bus"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < cfg.attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		cfg.logger.WithError(err).WithField("attempt", i+1).Warn("failed to connect to rabbitmq")
		if i+1 < cfg.attempts {
			time.Sleep(cfg.interval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	return &Bus{
		conn:     conn,
		pubCh:    ch,
		declared: make(map[string]bool),
		logger:   cfg.logger,
	}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(
		name,         // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

func (b *Bus) ensureExchange(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.declared[name] {
		return nil
	}
	b.pubMu.Lock()
	err := declareExchange(b.pubCh, name)
	b.pubMu.Unlock()
	if err != nil {
		return err
	}
	b.declared[name] = true
	return nil
}

// Publish отправляет конверт в exchange с routing key = topic.
func (b *Bus) Publish(ctx context.Context, d messaging.Delivery) error {
	if err := b.ensureExchange(d.Exchange); err != nil {
		return err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	err := b.pubCh.PublishWithContext(ctx,
		d.Exchange, // exchange
		d.Topic,    // routing key
		false,      // mandatory
		false,      // immediate
		toPublishing(d),
	)
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", d.Exchange, d.Topic, err)
	}

	b.logger.WithFields(log.Fields{
		"exchange":   d.Exchange,
		"topic":      d.Topic,
		"message_id": d.ID,
	}).Debug("message published to rabbitmq")
	return nil
}

// Subscribe объявляет долговременную очередь, привязывает её к routing key и
// запускает воркер на отдельном канале.
func (b *Bus) Subscribe(ctx context.Context, binding messaging.Binding, h messaging.Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	msgs, err := bindAndConsume(ch, binding)
	if err != nil {
		_ = ch.Close()
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ch.Close()
		return ErrClosed
	}
	b.consumers = append(b.consumers, ch)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				_ = messaging.Dispatch(ctx, b.logger, binding, h, fromAMQP(m))
			}
		}
	}()

	b.logger.WithField("binding", binding.String()).Info("rabbitmq subscription started")
	return nil
}

func bindAndConsume(ch *amqp.Channel, binding messaging.Binding) (<-chan amqp.Delivery, error) {
	if err := declareExchange(ch, binding.Exchange); err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		binding.Queue, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", binding.Queue, err)
	}

	if err := ch.QueueBind(q.Name, binding.Topic, binding.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", binding.Queue, err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", binding.Queue, err)
	}
	return msgs, nil
}

// Close закрывает каналы и соединение, дожидаясь выхода воркеров.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	consumers := b.consumers
	b.consumers = nil
	b.mu.Unlock()

	var errs []error
	for _, ch := range consumers {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	b.pubMu.Lock()
	if err := b.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	b.pubMu.Unlock()
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}

	b.wg.Wait()
	return errors.Join(errs...)
}

// Ping проверяет, что соединение с брокером живо.
func (b *Bus) Ping() error {
	if b.conn == nil || b.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

var _ messaging.Bus = (*Bus)(nil)
