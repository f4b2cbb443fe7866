package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	t *table[domain.Order]
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{t: newTable(accessor[domain.Order]{
		id:         func(o domain.Order) int64 { return o.ID },
		setID:      func(o *domain.Order, id int64) { o.ID = id },
		version:    func(o domain.Order) int64 { return o.Version },
		setVersion: func(o *domain.Order, v int64) { o.Version = v },
		// Храним копию позиций, чтобы избежать непредсказуемых мутаций извне.
		clone: func(o domain.Order) domain.Order {
			o.Lines = append([]domain.OrderLine(nil), o.Lines...)
			return o
		},
	})}
}

// Create сохраняет новый заказ и присваивает ему идентификатор.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	return r.t.create(order)
}

// Get возвращает заказ или ErrNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	return r.t.get(id)
}

func (r *orderRepositoryInMemory) List(context.Context) ([]domain.Order, error) {
	return r.t.list(), nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) (domain.Order, error) {
	order.UpdatedAt = time.Now().UTC()
	return r.t.save(order)
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
