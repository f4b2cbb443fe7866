// Package customers реализует CRUD над клиентами сервиса аккаунтов.
package customers

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

const maxUpdateAttempts = 3

// Service управляет клиентами.
type Service struct {
	repo   domain.CustomerRepository
	logger *log.Entry
}

// NewService создаёт сервис клиентов.
func NewService(repo domain.CustomerRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "customers")
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("get customer %d: %w", id, err)
	}
	return c, nil
}

// Create сохраняет клиента; идентификатор назначает хранилище.
func (s *Service) Create(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	c.ID = 0
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("%w: create customer: %w", domain.ErrPersistence, err)
	}
	s.logger.WithField("customer_id", created.ID).Info("customer created")
	return created, nil
}

// Update целиком заменяет данные клиента. Идентификатор в теле обязан совпадать с id.
func (s *Service) Update(ctx context.Context, id int64, c domain.Customer) error {
	if c.ID != id {
		return fmt.Errorf("%w: customer id %d does not match path id %d", domain.ErrValidation, c.ID, id)
	}

	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var current domain.Customer
		current, err = s.repo.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("update customer %d: %w", id, err)
		}
		c.Version = current.Version
		if _, err = s.repo.Save(ctx, c); !domain.IsVersionConflict(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("update customer %d: %w", id, err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete customer %d: %w", id, err)
	}
	return nil
}

// Seed заполняет пустое хранилище демонстрационными клиентами.
// Возвращает число созданных записей.
func (s *Service) Seed(ctx context.Context) (int, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for _, name := range []string{"Frank One", "Frank Two", "Frank Three", "Frank Four", "Frank Five"} {
		_, err := s.repo.Create(ctx, domain.Customer{
			Name:            name,
			Email:           "test@email.dk",
			Phone:           "+4500000000",
			BillingAddress:  "Fake Address Vej 01, 0000 Fake",
			ShippingAddress: "Fake Address Vej 01, 0000 Fake",
			CreditStanding:  200,
		})
		if err != nil {
			return 0, fmt.Errorf("seed customer %q: %w", name, err)
		}
	}
	return 5, nil
}
