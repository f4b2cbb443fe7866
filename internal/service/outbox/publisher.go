package outbox

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// Publisher откладывает публикацию: сообщение сохраняется в outbox,
// а в шину его отправляет Worker.
type Publisher struct {
	repo domain.OutboxRepository
}

// NewPublisher создаёт publisher поверх outbox-репозитория.
func NewPublisher(repo domain.OutboxRepository) *Publisher {
	return &Publisher{repo: repo}
}

// Publish сохраняет доставку со статусом pending.
func (p *Publisher) Publish(ctx context.Context, d messaging.Delivery) error {
	_, err := p.repo.Enqueue(ctx, domain.OutboxMessage{
		ID:       d.ID,
		Exchange: d.Exchange,
		Topic:    d.Topic,
		Payload:  d.Body,
		Headers:  d.Headers,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s/%s: %w", d.Exchange, d.Topic, err)
	}
	return nil
}

func toDelivery(msg domain.OutboxMessage) messaging.Delivery {
	return messaging.Delivery{
		ID:       msg.ID,
		Exchange: msg.Exchange,
		Topic:    msg.Topic,
		Body:     msg.Payload,
		Headers:  msg.Headers,
	}
}

var _ messaging.Publisher = (*Publisher)(nil)
