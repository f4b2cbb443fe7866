package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// ProductRepository хранит товары склада.
type ProductRepository struct {
	q querier
}

// NewProductRepository создаёт репозиторий поверх пула соединений.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{q: store.DB()}
}

const productColumns = `id, name, price, items_in_stock, items_reserved, version`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.ItemsInStock, &p.ItemsReserved, &p.Version)
	return p, err
}

// Create вставляет товар. Явно заданный ID сохраняется, последовательность
// сдвигается за него.
func (r *ProductRepository) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p.Version = 1
	var err error
	if p.ID > 0 {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
		`, p.ID, p.Name, p.Price, p.ItemsInStock, p.ItemsReserved, p.Version)
		if err == nil {
			err = syncSequence(ctx, r.q, "products")
		}
	} else {
		err = r.q.QueryRowContext(ctx, `
			INSERT INTO products (name, price, items_in_stock, items_reserved, version)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, p.Name, p.Price, p.ItemsInStock, p.ItemsReserved, p.Version).Scan(&p.ID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.ErrVersionConflict
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Save обновляет товар при совпадении версии.
func (r *ProductRepository) Save(ctx context.Context, p domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    price = $3,
		    items_in_stock = $4,
		    items_reserved = $5,
		    version = version + 1
		WHERE id = $1 AND version = $6
	`, p.ID, p.Name, p.Price, p.ItemsInStock, p.ItemsReserved, p.Version)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Product{}, rowMissingOrConflict(ctx, r.q, "products", p.ID)
	}

	p.Version++
	return p, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	return deleteByID(ctx, r.q, "products", id)
}

func deleteByID(ctx context.Context, q querier, table string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// syncSequence сдвигает BIGSERIAL за максимальный идентификатор таблицы.
func syncSequence(ctx context.Context, q querier, table string) error {
	_, err := q.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('`+table+`', 'id'), GREATEST((SELECT MAX(id) FROM `+table+`), 1))
	`)
	if err != nil {
		return fmt.Errorf("sync %s sequence: %w", table, err)
	}
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
