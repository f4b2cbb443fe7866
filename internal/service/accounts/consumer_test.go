package accounts

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/dedup"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/memory"
	storage "github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "accounts-test")
}

func setup(t *testing.T, customers ...domain.Customer) (*Consumer, domain.CustomerRepository) {
	t.Helper()
	repo := storage.NewCustomerRepository()
	for _, c := range customers {
		_, err := repo.Create(context.Background(), c)
		require.NoError(t, err)
	}
	return NewConsumer(Shared(repo),
		WithLogger(quietLogger()),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	), repo
}

func paid(t *testing.T, customerID, amount int64) messaging.Delivery {
	t.Helper()
	d, err := messaging.NewDelivery(context.Background(), messaging.ExchangeCredit, messaging.TopicPaid,
		messaging.CreditStandingChangedMessage{CustomerID: customerID, PaidAmount: amount, Status: "paid"})
	require.NoError(t, err)
	return d
}

func credit(t *testing.T, repo domain.CustomerRepository, id int64) int64 {
	t.Helper()
	c, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return c.CreditStanding
}

func TestHandle_DecreasesCredit(t *testing.T) {
	c, repo := setup(t, domain.Customer{ID: 1, CreditStanding: 100})

	require.NoError(t, c.Handle(context.Background(), paid(t, 1, 15)))
	assert.Equal(t, int64(85), credit(t, repo, 1))
}

func TestHandle_CreditMayGoNegative(t *testing.T) {
	c, repo := setup(t, domain.Customer{ID: 1, CreditStanding: 10})

	require.NoError(t, c.Handle(context.Background(), paid(t, 1, 25)))
	assert.Equal(t, int64(-15), credit(t, repo, 1))
}

func TestHandle_UnknownCustomerDropped(t *testing.T) {
	c, _ := setup(t)
	require.NoError(t, c.Handle(context.Background(), paid(t, 7, 10)))
}

func TestHandle_RedeliveryChargesTwice(t *testing.T) {
	c, repo := setup(t, domain.Customer{ID: 1, CreditStanding: 100})
	d := paid(t, 1, 10)

	require.NoError(t, c.Handle(context.Background(), d))
	require.NoError(t, c.Handle(context.Background(), d))
	assert.Equal(t, int64(80), credit(t, repo, 1))
}

func TestSubscribe_WithDedupChargesOnce(t *testing.T) {
	c, repo := setup(t, domain.Customer{ID: 1, CreditStanding: 100})
	bus := memory.NewBus(memory.WithLogger(quietLogger()))
	t.Cleanup(func() { _ = bus.Close() })

	store := dedup.NewMemoryStore(time.Minute)
	require.NoError(t, c.Subscribe(context.Background(), bus, func(queue string) messaging.Middleware {
		return dedup.Middleware(store, queue, quietLogger())
	}))

	d := paid(t, 1, 10)
	require.NoError(t, bus.Publish(context.Background(), d))
	require.NoError(t, bus.Publish(context.Background(), d))
	// Событие заказа с той же темой на другом обменнике сюда не попадает.
	require.NoError(t, messaging.PublishMessage(context.Background(), bus, messaging.ExchangeOrders, messaging.TopicPaid,
		messaging.OrderStatusChangedMessage{CustomerID: 1, Status: "paid"}))
	require.NoError(t, bus.Flush(context.Background()))

	assert.Equal(t, int64(90), credit(t, repo, 1))
}

func TestHandle_ConcurrentChargesLoseNoUpdates(t *testing.T) {
	c, repo := setup(t, domain.Customer{ID: 1, CreditStanding: 1000})

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := messaging.NewDelivery(context.Background(), messaging.ExchangeCredit, messaging.TopicPaid,
				messaging.CreditStandingChangedMessage{CustomerID: 1, PaidAmount: 5})
			if err != nil {
				t.Errorf("new delivery: %v", err)
				return
			}
			if err := c.Handle(context.Background(), d); err != nil {
				t.Errorf("handle: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000-5*workers), credit(t, repo, 1))
}
