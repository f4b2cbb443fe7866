// Package kafka реализует шину сообщений поверх Kafka (IBM/sarama).
// Пара exchange/routing key отображается в отдельный topic, очередь в consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// ErrClosed возвращается при работе с закрытой шиной.
var ErrClosed = errors.New("kafka bus is closed")

// Config описывает подключение шины к кластеру.
type Config struct {
	Brokers     []string
	TopicPrefix string
}

type groupFactory func(groupID string) (sarama.ConsumerGroup, error)

// Bus: реализация messaging.Bus на Kafka.
type Bus struct {
	producer *Producer
	prefix   string
	newGroup groupFactory

	mu        sync.Mutex
	consumers []*Consumer
	closed    bool
}

// NewBus создаёт producer; consumer groups открываются при подписке.
func NewBus(cfg Config) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	producer, err := NewProducer(cfg.Brokers, cfg.TopicPrefix)
	if err != nil {
		return nil, err
	}
	return newBus(producer, cfg.TopicPrefix, func(groupID string) (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroup(cfg.Brokers, groupID, newConsumerConfig())
	}), nil
}

func newBus(producer *Producer, prefix string, factory groupFactory) *Bus {
	return &Bus{producer: producer, prefix: prefix, newGroup: factory}
}

// Publish синхронно отправляет конверт; ctx не прерывает отправку sarama.
func (b *Bus) Publish(ctx context.Context, d messaging.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return b.producer.Send(d)
}

// Subscribe открывает consumer group с именем очереди и запускает чтение topic.
func (b *Bus) Subscribe(ctx context.Context, binding messaging.Binding, h messaging.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	group, err := b.newGroup(binding.Queue)
	if err != nil {
		return fmt.Errorf("open consumer group %s: %w", binding.Queue, err)
	}
	consumer := newConsumer(group, b.prefix, binding, h)
	if err := consumer.Start(ctx); err != nil {
		_ = group.Close()
		return err
	}
	b.consumers = append(b.consumers, consumer)
	return nil
}

// Close останавливает consumers и закрывает producer.
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
	for _, c := range consumers {
		if err := c.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ messaging.Bus = (*Bus)(nil)
