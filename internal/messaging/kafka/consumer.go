package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// Consumer читает один topic в рамках consumer group, совпадающей с именем очереди.
// Каждое сообщение подтверждается после вызова обработчика независимо от результата:
// повторной доставки по ошибке и DLQ нет.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	binding  messaging.Binding
	handler  messaging.Handler
	logger   *log.Entry
	wg       sync.WaitGroup
}

func newConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	return config
}

// NewConsumer создает consumer для подписки
func NewConsumer(brokers []string, prefix string, binding messaging.Binding, handler messaging.Handler) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, binding.Queue, newConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, prefix, binding, handler), nil
}

func newConsumer(group sarama.ConsumerGroup, prefix string, binding messaging.Binding, handler messaging.Handler) *Consumer {
	return &Consumer{
		consumer: group,
		topics:   []string{TopicName(prefix, binding.Exchange, binding.Topic)},
		binding:  binding,
		handler:  handler,
		logger:   log.WithFields(log.Fields{"component": "kafka-consumer", "queue": binding.Queue}),
	}
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume должен вызываться в цикле, так как при rebalance он завершается
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}

			// Проверяем, не отменен ли контекст
			if ctx.Err() != nil {
				return
			}
		}
	}()

	// Обработка ошибок
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition последовательно
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Debug("received message")

			_ = messaging.Dispatch(session.Context(), c.logger, c.binding, c.handler, toDelivery(c.binding, message))

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
