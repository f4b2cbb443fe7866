package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ и возвращает его с присвоенным идентификатором.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// List возвращает все заказы в порядке идентификаторов.
	List(ctx context.Context) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) (Order, error)
}

// ProductRepository описывает хранилище товаров сервиса склада.
type ProductRepository interface {
	Create(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context) ([]Product, error)
	// Save обновляет товар, если Version совпадает с сохранённой, иначе ErrVersionConflict.
	Save(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id int64) error
}

// CustomerRepository описывает хранилище клиентов сервиса аккаунтов.
type CustomerRepository interface {
	Create(ctx context.Context, customer Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context) ([]Customer, error)
	// Save обновляет клиента, если Version совпадает с сохранённой, иначе ErrVersionConflict.
	Save(ctx context.Context, customer Customer) (Customer, error)
	Delete(ctx context.Context, id int64) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}
