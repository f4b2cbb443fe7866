package messaging

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Middleware оборачивает обработчик сквозной логикой (метрики, дедупликация).
type Middleware func(Handler) Handler

// Chain применяет middleware так, что первый в списке оказывается внешним.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Dispatch вызывает обработчик в изоляции: паника превращается в ошибку,
// ошибка логируется и возвращается воркеру, но воркер продолжает работу.
func Dispatch(ctx context.Context, logger *log.Entry, b Binding, h Handler, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		if err != nil && logger != nil {
			logger.WithError(err).WithFields(log.Fields{
				"exchange":   b.Exchange,
				"queue":      b.Queue,
				"topic":      b.Topic,
				"message_id": d.ID,
			}).Error("message handler failed")
		}
	}()

	return h(ExtractTrace(ctx, d.Headers), d)
}

// QueueMiddleware строит middleware для конкретной очереди.
type QueueMiddleware func(queue string) Middleware

// ForQueue собирает middleware очереди в порядке объявления.
func ForQueue(queue string, factories ...QueueMiddleware) []Middleware {
	mws := make([]Middleware, 0, len(factories))
	for _, f := range factories {
		if f != nil {
			mws = append(mws, f(queue))
		}
	}
	return mws
}
