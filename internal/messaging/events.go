package messaging

import "github.com/vladislavdragonenkov/shopflow/internal/domain"

// Exchanges разделяют семейства сообщений: очередь склада на "paid"
// не должна получать события изменения кредита.
const (
	ExchangeOrders = "shop.orders"
	ExchangeCredit = "shop.credit"
)

// Routing keys совпадают со статусами заказа.
const (
	TopicCompleted = string(domain.OrderStatusCompleted)
	TopicCancelled = string(domain.OrderStatusCancelled)
	TopicShipped   = string(domain.OrderStatusShipped)
	TopicPaid      = string(domain.OrderStatusPaid)
)

// Имена долговременных очередей потребителей.
const (
	QueueInventoryCompleted = "productApiHkCompleted"
	QueueInventoryCancelled = "productApiOrderCancelled"
	QueueInventoryShipped   = "productApiOrderShipped"
	QueueInventoryPaid      = "productApiOrderPaid"
	QueueAccountsPaid       = "customerApiPaid"
)

// OrderStatusChangedMessage объявляет переход заказа в новый статус.
type OrderStatusChangedMessage struct {
	CustomerID int64                 `json:"customerId"`
	OrderLines []domain.OrderLineDTO `json:"orderLines"`
	Status     string                `json:"status"`
}

// CreditStandingChangedMessage объявляет списание с кредитного баланса клиента.
type CreditStandingChangedMessage struct {
	CustomerID int64  `json:"customerId"`
	PaidAmount int64  `json:"paidAmount"`
	Status     string `json:"status"`
}

// NewOrderStatusChanged строит событие по текущему состоянию заказа.
func NewOrderStatusChanged(order domain.Order) OrderStatusChangedMessage {
	return OrderStatusChangedMessage{
		CustomerID: order.CustomerID,
		OrderLines: domain.OrderLinesToDTO(order.Lines),
		Status:     string(order.Status),
	}
}

// Lines возвращает позиции события в доменном виде.
func (m OrderStatusChangedMessage) Lines() []domain.OrderLine {
	return domain.OrderLinesFromDTO(m.OrderLines)
}
