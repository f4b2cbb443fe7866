package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []messaging.Delivery
	callCount      int
}

func (s *stubPublisher) Publish(_ context.Context, d messaging.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	err := s.err
	if len(s.sequenceErrors) > 0 {
		err = s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
	}
	if err == nil {
		s.published = append(s.published, d)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func enqueue(t *testing.T, repo *memory.OutboxRepository, topic string) string {
	t.Helper()
	pub := NewPublisher(repo)
	d, err := messaging.NewDelivery(context.Background(), messaging.ExchangeOrders, topic, map[string]string{"status": topic})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), d))
	return d.ID
}

func statusOf(repo *memory.OutboxRepository, id string) string {
	status, _ := repo.Status(id)
	return status
}

func TestPublisher_EnqueuesInsteadOfSending(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	id := enqueue(t, repo, "completed")

	pending, err := repo.PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, messaging.ExchangeOrders, pending[0].Exchange)
	assert.Equal(t, "completed", pending[0].Topic)
	assert.JSONEq(t, `{"status":"completed"}`, string(pending[0].Payload))
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	first := enqueue(t, repo, "completed")
	second := enqueue(t, repo, "cancelled")
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
	require.Len(t, publisher.published, 2)
	assert.Equal(t, first, publisher.published[0].ID, "relay keeps enqueue order")
	assert.Equal(t, second, publisher.published[1].ID)
	assert.Equal(t, "sent", statusOf(repo, first))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
}

func TestWorker_ProcessOnce_MarkFailedAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	id := enqueue(t, repo, "paid")
	publisher := &stubPublisher{err: errors.New("publish failed")}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, "failed", statusOf(repo, id))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	id := enqueue(t, repo, "shipped")
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(time.Millisecond), WithMaxAttempts(3))

	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, "sent", statusOf(repo, id))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(memory.NewOutboxRepository(), &stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
