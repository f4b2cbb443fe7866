package memory

import (
	"context"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type customerRepositoryInMemory struct {
	t *table[domain.Customer]
}

// NewCustomerRepository возвращает in-memory репозиторий клиентов.
func NewCustomerRepository() domain.CustomerRepository {
	return &customerRepositoryInMemory{t: newTable(accessor[domain.Customer]{
		id:         func(c domain.Customer) int64 { return c.ID },
		setID:      func(c *domain.Customer, id int64) { c.ID = id },
		version:    func(c domain.Customer) int64 { return c.Version },
		setVersion: func(c *domain.Customer, v int64) { c.Version = v },
	})}
}

func (r *customerRepositoryInMemory) Create(_ context.Context, c domain.Customer) (domain.Customer, error) {
	return r.t.create(c)
}

func (r *customerRepositoryInMemory) Get(_ context.Context, id int64) (domain.Customer, error) {
	return r.t.get(id)
}

func (r *customerRepositoryInMemory) List(context.Context) ([]domain.Customer, error) {
	return r.t.list(), nil
}

func (r *customerRepositoryInMemory) Save(_ context.Context, c domain.Customer) (domain.Customer, error) {
	return r.t.save(c)
}

func (r *customerRepositoryInMemory) Delete(_ context.Context, id int64) error {
	return r.t.delete(id)
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
