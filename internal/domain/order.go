package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
// Состояния "pending"/"rejected" отсутствуют: заказ, не прошедший предпроверку, не сохраняется.
type OrderStatus string

const (
	// OrderStatusCompleted: заказ создан после успешной предпроверки склада и кредита.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled: заказ отменён, резерв возвращается на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusShipped: заказ отгружен.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusPaid: заказ оплачен, кредит клиента уменьшается.
	OrderStatusPaid OrderStatus = "paid"
)

// Valid сообщает, является ли значение известным статусом.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusShipped, OrderStatusPaid:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода.
// Отгрузка и оплата разрешены из любого состояния, отмена из любого, кроме cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch next {
	case OrderStatusCancelled:
		return s == OrderStatusCompleted || s == OrderStatusShipped || s == OrderStatusPaid
	case OrderStatusShipped, OrderStatusPaid:
		return s.Valid()
	}
	return false
}

// OrderLine: позиция заказа. Неизменяема после добавления в заказ.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID         int64
	CustomerID int64
	Lines      []OrderLine
	Status     OrderStatus
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	for _, line := range o.Lines {
		if line.ProductID <= 0 {
			errs = append(errs, ErrLineProductRequired)
		}
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
	}

	return errs
}
