package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

func TestBusPublishUsesProducer(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()
	bus := newBus(newProducer(mockProducer, "shop"), "shop", nil)

	err := messaging.PublishMessage(context.Background(), bus, messaging.ExchangeCredit, messaging.TopicPaid,
		messaging.CreditStandingChangedMessage{CustomerID: 7, PaidAmount: 15, Status: "paid"})
	require.NoError(t, err)
	require.NoError(t, bus.Close())
}

func TestBusSubscribeOpensGroupPerQueue(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	var groups []string
	factory := func(groupID string) (sarama.ConsumerGroup, error) {
		groups = append(groups, groupID)
		return &mockConsumerGroup{errorsCh: make(chan error)}, nil
	}
	bus := newBus(newProducer(mockProducer, ""), "", factory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	noop := func(context.Context, messaging.Delivery) error { return nil }

	require.NoError(t, bus.Subscribe(ctx, completedBinding, noop))
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: messaging.ExchangeCredit, Queue: messaging.QueueAccountsPaid, Topic: messaging.TopicPaid}, noop))

	assert.Equal(t, []string{messaging.QueueInventoryCompleted, messaging.QueueAccountsPaid}, groups)

	cancel()
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), messaging.Delivery{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBusSubscribeGroupError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	bus := newBus(newProducer(mockProducer, ""), "", func(string) (sarama.ConsumerGroup, error) {
		return nil, errors.New("no brokers")
	})

	err := bus.Subscribe(context.Background(), completedBinding, nil)
	assert.Error(t, err)
	require.NoError(t, bus.Close())
}

func TestNewBusRequiresBrokers(t *testing.T) {
	_, err := NewBus(Config{})
	assert.Error(t, err)
}
