package memory

import (
	"context"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type productRepositoryInMemory struct {
	t *table[domain.Product]
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{t: newTable(accessor[domain.Product]{
		id:         func(p domain.Product) int64 { return p.ID },
		setID:      func(p *domain.Product, id int64) { p.ID = id },
		version:    func(p domain.Product) int64 { return p.Version },
		setVersion: func(p *domain.Product, v int64) { p.Version = v },
	})}
}

func (r *productRepositoryInMemory) Create(_ context.Context, p domain.Product) (domain.Product, error) {
	return r.t.create(p)
}

func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	return r.t.get(id)
}

func (r *productRepositoryInMemory) List(context.Context) ([]domain.Product, error) {
	return r.t.list(), nil
}

func (r *productRepositoryInMemory) Save(_ context.Context, p domain.Product) (domain.Product, error) {
	return r.t.save(p)
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id int64) error {
	return r.t.delete(id)
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
