package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// CustomerRepository хранит клиентов и их кредитный баланс.
type CustomerRepository struct {
	q querier
}

// NewCustomerRepository создаёт репозиторий поверх пула соединений.
func NewCustomerRepository(store *Store) *CustomerRepository {
	return &CustomerRepository{q: store.DB()}
}

const customerColumns = `id, name, email, phone, billing_address, shipping_address, credit_standing, version`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.BillingAddress, &c.ShippingAddress, &c.CreditStanding, &c.Version)
	return c, err
}

func (r *CustomerRepository) Create(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c.Version = 1
	var err error
	if c.ID > 0 {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO customers (`+customerColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, c.ID, c.Name, c.Email, c.Phone, c.BillingAddress, c.ShippingAddress, c.CreditStanding, c.Version)
		if err == nil {
			err = syncSequence(ctx, r.q, "customers")
		}
	} else {
		err = r.q.QueryRowContext(ctx, `
			INSERT INTO customers (name, email, phone, billing_address, shipping_address, credit_standing, version)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, c.Name, c.Email, c.Phone, c.BillingAddress, c.ShippingAddress, c.CreditStanding, c.Version).Scan(&c.ID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, domain.ErrVersionConflict
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (r *CustomerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCustomer(r.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (r *CustomerRepository) List(ctx context.Context) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

func (r *CustomerRepository) Save(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE customers
		SET name = $2,
		    email = $3,
		    phone = $4,
		    billing_address = $5,
		    shipping_address = $6,
		    credit_standing = $7,
		    version = version + 1
		WHERE id = $1 AND version = $8
	`, c.ID, c.Name, c.Email, c.Phone, c.BillingAddress, c.ShippingAddress, c.CreditStanding, c.Version)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Customer{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Customer{}, rowMissingOrConflict(ctx, r.q, "customers", c.ID)
	}

	c.Version++
	return c, nil
}

func (r *CustomerRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.q, "customers", id)
}

var _ domain.CustomerRepository = (*CustomerRepository)(nil)
