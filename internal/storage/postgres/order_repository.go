package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// OrderRepository: PostgreSQL-реализация domain.OrderRepository.
// Позиции заказа хранятся в отдельной таблице order_lines.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (created domain.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, order.CustomerID, string(order.Status), order.Version, order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	if err = insertOrderLines(ctx, tx, order.ID, order.Lines); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return order, nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		order  domain.Order
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.CustomerID, &status, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	lines, err := loadOrderLines(ctx, r.db, `WHERE order_id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[id]
	if order.Lines == nil {
		order.Lines = []domain.OrderLine{}
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, status, version, created_at, updated_at
		FROM orders
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order  domain.Order
			status string
		)
		if err := rows.Scan(&order.ID, &order.CustomerID, &status, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Status = domain.OrderStatus(status)
		order.CreatedAt = order.CreatedAt.UTC()
		order.UpdatedAt = order.UpdatedAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	lines, err := loadOrderLines(ctx, r.db, "")
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
		if orders[i].Lines == nil {
			orders[i].Lines = []domain.OrderLine{}
		}
	}

	return orders, nil
}

// Save обновляет статус и позиции заказа, если версия совпадает с сохранённой.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) (saved domain.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $2,
		    status = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $1 AND version = $5
	`, order.ID, order.CustomerID, string(order.Status), order.UpdatedAt, order.Version)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = rowMissingOrConflict(ctx, tx, "orders", order.ID)
		return domain.Order{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, order.ID); err != nil {
		return domain.Order{}, fmt.Errorf("delete order lines: %w", err)
	}
	if err = insertOrderLines(ctx, tx, order.ID, order.Lines); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit save order: %w", err)
	}

	order.Version++
	return order, nil
}

func insertOrderLines(ctx context.Context, q querier, orderID int64, lines []domain.OrderLine) error {
	for i, line := range lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity)
			VALUES ($1,$2,$3,$4)
		`, orderID, i, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

// loadOrderLines читает позиции одним запросом и группирует их по заказу.
func loadOrderLines(ctx context.Context, q querier, where string, args ...any) (map[int64][]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, quantity
		FROM order_lines `+where+`
		ORDER BY order_id, line_no
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderLine)
	for rows.Next() {
		var (
			orderID int64
			line    domain.OrderLine
		)
		if err := rows.Scan(&orderID, &line.ProductID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return result, nil
}

// rowMissingOrConflict различает отсутствие строки и устаревшую версию
// после UPDATE, не затронувшего ни одной строки.
func rowMissingOrConflict(ctx context.Context, q querier, table string, id int64) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
