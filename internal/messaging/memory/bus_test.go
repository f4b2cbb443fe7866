package memory_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging/memory"
)

func newTestBus(t *testing.T) *memory.Bus {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	bus := memory.NewBus(memory.WithLogger(logrus.NewEntry(logger)))
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func flush(t *testing.T, bus *memory.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, d messaging.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, d.ID)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestBusRoutesByExchangeAndTopic(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	inventoryPaid := &recorder{}
	accountsPaid := &recorder{}
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: messaging.ExchangeOrders, Queue: messaging.QueueInventoryPaid, Topic: messaging.TopicPaid}, inventoryPaid.handle))
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: messaging.ExchangeCredit, Queue: messaging.QueueAccountsPaid, Topic: messaging.TopicPaid}, accountsPaid.handle))

	require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: "order-paid", Exchange: messaging.ExchangeOrders, Topic: messaging.TopicPaid}))
	require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: "credit-paid", Exchange: messaging.ExchangeCredit, Topic: messaging.TopicPaid}))
	require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: "shipped", Exchange: messaging.ExchangeOrders, Topic: messaging.TopicShipped}))
	flush(t, bus)

	assert.Equal(t, []string{"order-paid"}, inventoryPaid.snapshot())
	assert.Equal(t, []string{"credit-paid"}, accountsPaid.snapshot())
}

func TestBusKeepsFIFOWithinQueue(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	rec := &recorder{}
	binding := messaging.Binding{Exchange: messaging.ExchangeOrders, Queue: "fifo", Topic: "completed"}
	require.NoError(t, bus.Subscribe(ctx, binding, rec.handle))

	want := []string{"1", "2", "3", "4", "5"}
	for _, id := range want {
		require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: id, Exchange: binding.Exchange, Topic: binding.Topic}))
	}
	flush(t, bus)

	assert.Equal(t, want, rec.snapshot())
}

func TestBusFansOutToEveryBoundQueue(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	a, b := &recorder{}, &recorder{}
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: "x", Queue: "a", Topic: "t"}, a.handle))
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: "x", Queue: "b", Topic: "t"}, b.handle))

	require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: "m", Exchange: "x", Topic: "t"}))
	flush(t, bus)

	assert.Equal(t, []string{"m"}, a.snapshot())
	assert.Equal(t, []string{"m"}, b.snapshot())
}

func TestBusIsolatesHandlerPanics(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	healthy := &recorder{}
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: "x", Queue: "panics", Topic: "t"}, func(context.Context, messaging.Delivery) error {
		panic("handler exploded")
	}))
	require.NoError(t, bus.Subscribe(ctx, messaging.Binding{Exchange: "x", Queue: "healthy", Topic: "t"}, healthy.handle))

	for _, id := range []string{"1", "2"} {
		require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: id, Exchange: "x", Topic: "t"}))
	}
	flush(t, bus)

	assert.Equal(t, []string{"1", "2"}, healthy.snapshot())
}

func TestBusDropsMessagesWithoutBinding(t *testing.T) {
	bus := newTestBus(t)

	require.NoError(t, bus.Publish(context.Background(), messaging.Delivery{ID: "lost", Exchange: "x", Topic: "nobody"}))
	flush(t, bus)
}

func TestBusRejectsAfterClose(t *testing.T) {
	bus := memory.NewBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), messaging.Delivery{Exchange: "x", Topic: "t"})
	assert.ErrorIs(t, err, memory.ErrClosed)

	err = bus.Subscribe(context.Background(), messaging.Binding{Exchange: "x", Queue: "q", Topic: "t"}, func(context.Context, messaging.Delivery) error { return nil })
	assert.ErrorIs(t, err, memory.ErrClosed)
}

func TestBusUnbindsQueueWhenSubscriptionEnds(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	bus := memory.NewBus(memory.WithLogger(logrus.NewEntry(logger)), memory.WithQueueSize(2))
	t.Cleanup(func() { _ = bus.Close() })

	binding := messaging.Binding{Exchange: "x", Queue: "q", Topic: "t"}
	subCtx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	require.NoError(t, bus.Subscribe(subCtx, binding, rec.handle))
	cancel()

	require.Eventually(t, func() bool {
		ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer stop()
		if err := bus.Publish(ctx, messaging.Delivery{ID: "early", Exchange: "x", Topic: "t"}); err != nil {
			return false
		}
		return bus.Flush(ctx) == nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, messaging.Delivery{ID: "late", Exchange: "x", Topic: "t"}))
	}
	flush(t, bus)

	other := &recorder{}
	require.NoError(t, bus.Subscribe(context.Background(), binding, other.handle))
	require.NoError(t, bus.Publish(context.Background(), messaging.Delivery{ID: "fresh", Exchange: "x", Topic: "t"}))
	flush(t, bus)
	assert.Equal(t, []string{"fresh"}, other.snapshot())
}

func TestBusDefaultLoggerFollowsStandardLogger(t *testing.T) {
	std := logrus.StandardLogger()
	prevOut, prevLevel, prevFormatter := std.Out, std.GetLevel(), std.Formatter
	t.Cleanup(func() {
		std.SetOutput(prevOut)
		std.SetLevel(prevLevel)
		std.SetFormatter(prevFormatter)
	})

	var buf bytes.Buffer
	std.SetOutput(&buf)
	std.SetLevel(logrus.DebugLevel)
	std.SetFormatter(&logrus.JSONFormatter{})

	bus := memory.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	require.NoError(t, bus.Subscribe(context.Background(), messaging.Binding{Exchange: "x", Queue: "q", Topic: "t"}, func(context.Context, messaging.Delivery) error { return nil }))

	assert.Contains(t, buf.String(), `"msg":"subscription started"`)
	assert.Contains(t, buf.String(), `"component":"memory-bus"`)
}
