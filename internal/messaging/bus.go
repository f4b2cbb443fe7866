// Package messaging описывает транспортно-независимый контракт шины сообщений:
// публикация в topic exchange и подписка именованной очереди на routing key.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrHandlerPanic оборачивает панику, перехваченную при обработке сообщения.
var ErrHandlerPanic = errors.New("message handler panicked")

// Delivery: конверт сообщения на проводе. При повторной доставке ID сохраняется.
type Delivery struct {
	ID       string
	Exchange string
	Topic    string
	Body     []byte
	Headers  map[string]string
}

// Decode разбирает тело сообщения в v.
func (d Delivery) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode %s/%s message %s: %w", d.Exchange, d.Topic, d.ID, err)
	}
	return nil
}

// Binding связывает очередь с routing key в exchange.
type Binding struct {
	Exchange string
	Queue    string
	Topic    string
}

func (b Binding) String() string {
	return b.Exchange + "/" + b.Topic + "->" + b.Queue
}

// Handler обрабатывает одно сообщение. Ошибка логируется транспортом;
// подтверждение автоматическое, повторной доставки по ошибке нет.
type Handler func(ctx context.Context, d Delivery) error

// Publisher отправляет готовый конверт в шину.
type Publisher interface {
	Publish(ctx context.Context, d Delivery) error
}

// Subscriber запускает по одному воркеру на каждую подписку.
// Воркер работает до отмены ctx или закрытия шины.
type Subscriber interface {
	Subscribe(ctx context.Context, b Binding, h Handler) error
}

// Bus объединяет обе стороны транспорта.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// NewDelivery сериализует msg в JSON, присваивает идентификатор сообщения
// и переносит trace-контекст из ctx в заголовки.
func NewDelivery(ctx context.Context, exchange, topic string, msg any) (Delivery, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal %s/%s message: %w", exchange, topic, err)
	}
	d := Delivery{
		ID:       uuid.NewString(),
		Exchange: exchange,
		Topic:    topic,
		Body:     body,
		Headers:  map[string]string{},
	}
	InjectTrace(ctx, d.Headers)
	return d, nil
}

// PublishMessage: сокращение для NewDelivery + Publish.
func PublishMessage(ctx context.Context, p Publisher, exchange, topic string, msg any) error {
	d, err := NewDelivery(ctx, exchange, topic, msg)
	if err != nil {
		return err
	}
	return p.Publish(ctx, d)
}
