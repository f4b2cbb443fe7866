// Package memory реализует шину сообщений внутри процесса.
// Семантика повторяет topic exchange: сообщение копируется в каждую очередь,
// привязанную к паре exchange/routing key; сообщения без привязанных очередей теряются.
package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// ErrClosed возвращается при работе с закрытой шиной.
var ErrClosed = errors.New("memory bus is closed")

const defaultQueueSize = 1024

type queue struct {
	name    string
	ch      chan messaging.Delivery
	gone    chan struct{}
	workers int
}

// Bus: in-memory реализация messaging.Bus.
type Bus struct {
	mu       sync.Mutex
	queues   map[string]*queue
	bindings map[string][]*queue
	closed   bool
	done     chan struct{}

	queueSize int
	pending   atomic.Int64
	wg        sync.WaitGroup
	logger    *log.Entry
}

// Option настраивает шину.
type Option func(*Bus)

// WithLogger задаёт логгер воркеров.
func WithLogger(logger *log.Entry) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithQueueSize задаёт ёмкость буфера каждой очереди.
func WithQueueSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

// NewBus создаёт шину без очередей.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		queues:    make(map[string]*queue),
		bindings:  make(map[string][]*queue),
		done:      make(chan struct{}),
		queueSize: defaultQueueSize,
		logger:    log.WithField("component", "memory-bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func bindingKey(exchange, topic string) string {
	return exchange + "\x00" + topic
}

// Publish кладёт копию конверта в каждую привязанную очередь, сохраняя FIFO внутри очереди.
func (b *Bus) Publish(ctx context.Context, d messaging.Delivery) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	targets := append([]*queue(nil), b.bindings[bindingKey(d.Exchange, d.Topic)]...)
	b.pending.Add(int64(len(targets)))
	b.mu.Unlock()

	for i, q := range targets {
		select {
		case q.ch <- d:
			b.reclaim(q)
		case <-q.gone:
			b.pending.Add(-1)
		case <-ctx.Done():
			b.pending.Add(-int64(len(targets) - i))
			return ctx.Err()
		case <-b.done:
			b.pending.Add(-int64(len(targets) - i))
			return ErrClosed
		}
	}
	return nil
}

// Subscribe создаёт очередь (если её ещё нет), привязывает её к routing key и
// запускает воркер. Несколько подписок на одну очередь конкурируют за сообщения.
func (b *Bus) Subscribe(ctx context.Context, binding messaging.Binding, h messaging.Handler) error {
	if h == nil {
		return errors.New("memory bus: nil handler")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	q, ok := b.queues[binding.Queue]
	if !ok {
		q = &queue{
			name: binding.Queue,
			ch:   make(chan messaging.Delivery, b.queueSize),
			gone: make(chan struct{}),
		}
		b.queues[binding.Queue] = q
	}
	key := bindingKey(binding.Exchange, binding.Topic)
	if !containsQueue(b.bindings[key], q) {
		b.bindings[key] = append(b.bindings[key], q)
	}
	q.workers++
	b.wg.Add(1)
	b.mu.Unlock()

	go b.work(ctx, binding, q, h)

	b.logger.WithField("binding", binding.String()).Debug("subscription started")
	return nil
}

func (b *Bus) work(ctx context.Context, binding messaging.Binding, q *queue, h messaging.Handler) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			b.release(q)
			return
		case <-b.done:
			return
		case d := <-q.ch:
			_ = messaging.Dispatch(ctx, b.logger, binding, h, d)
			b.pending.Add(-1)
		}
	}
}

// release снимает воркер с очереди. Очередь без воркеров отвязывается от
// всех routing key, её буфер отбрасывается.
func (b *Bus) release(q *queue) {
	b.mu.Lock()
	q.workers--
	if q.workers > 0 || b.closed {
		b.mu.Unlock()
		return
	}
	delete(b.queues, q.name)
	for key, list := range b.bindings {
		kept := list[:0]
		for _, item := range list {
			if item != q {
				kept = append(kept, item)
			}
		}
		if len(kept) == 0 {
			delete(b.bindings, key)
		} else {
			b.bindings[key] = kept
		}
	}
	close(q.gone)
	b.mu.Unlock()

	for b.reclaim(q) {
	}
	b.logger.WithField("queue", q.name).Debug("queue unbound")
}

// reclaim забирает одно сообщение из отвязанной очереди.
func (b *Bus) reclaim(q *queue) bool {
	select {
	case <-q.gone:
	default:
		return false
	}
	select {
	case <-q.ch:
		b.pending.Add(-1)
		return true
	default:
		return false
	}
}

// Flush ждёт, пока все опубликованные сообщения будут обработаны.
func (b *Bus) Flush(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if b.pending.Load() <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close останавливает воркеры. Необработанные сообщения отбрасываются.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func containsQueue(list []*queue, q *queue) bool {
	for _, item := range list {
		if item == q {
			return true
		}
	}
	return false
}

var _ messaging.Bus = (*Bus)(nil)
