// Package products реализует CRUD над товарами сервиса склада.
package products

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

const maxUpdateAttempts = 3

// Service управляет товарами.
type Service struct {
	repo   domain.ProductRepository
	logger *log.Entry
}

// NewService создаёт сервис товаров.
func NewService(repo domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "products")
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

// Get возвращает товар; этот же ответ читает шлюз сервиса заказов.
func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.ID = 0
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: create product: %w", domain.ErrPersistence, err)
	}
	s.logger.WithField("product_id", created.ID).Info("product created")
	return created, nil
}

// Update заменяет товар целиком, включая счётчики.
func (s *Service) Update(ctx context.Context, id int64, p domain.Product) error {
	if p.ID != id {
		return fmt.Errorf("%w: product id %d does not match path id %d", domain.ErrValidation, p.ID, id)
	}

	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var current domain.Product
		if current, err = s.repo.Get(ctx, id); err != nil {
			break
		}
		p.Version = current.Version
		if _, err = s.repo.Save(ctx, p); !domain.IsVersionConflict(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("update product %d: %w", id, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	return nil
}

// Seed заполняет пустой склад тремя товарами.
func (s *Service) Seed(ctx context.Context) (int, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	seed := []domain.Product{
		{Name: "Hammer", Price: 100, ItemsInStock: 10},
		{Name: "Screwdriver", Price: 70, ItemsInStock: 20},
		{Name: "Drill", Price: 500, ItemsInStock: 2},
	}
	for _, p := range seed {
		if _, err := s.repo.Create(ctx, p); err != nil {
			return 0, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
	}
	return len(seed), nil
}
