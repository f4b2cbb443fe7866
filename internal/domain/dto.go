package domain

import "time"

// OrderLineDTO: позиция заказа в JSON-представлении.
type OrderLineDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderDTO: публичное представление заказа.
type OrderDTO struct {
	ID         int64          `json:"id"`
	CustomerID int64          `json:"customerId"`
	OrderLines []OrderLineDTO `json:"orderLines"`
	Status     string         `json:"status,omitempty"`
	Date       *time.Time     `json:"date,omitempty"`
}

// ProductDTO: публичное представление товара; его же возвращает GET /products/{id}.
type ProductDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	ItemsInStock  int    `json:"itemsInStock"`
	ItemsReserved int    `json:"itemsReserved"`
}

// CustomerDTO: публичное представление клиента.
type CustomerDTO struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	BillingAddress  string `json:"billingAddress"`
	ShippingAddress string `json:"shippingAddress"`
	CreditStanding  int64  `json:"creditStanding"`
}

// OrderLinesFromDTO преобразует позиции из wire-формата.
func OrderLinesFromDTO(lines []OrderLineDTO) []OrderLine {
	if lines == nil {
		return nil
	}
	out := make([]OrderLine, len(lines))
	for i, l := range lines {
		out[i] = OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

// OrderLinesToDTO преобразует позиции в wire-формат. Никогда не возвращает nil.
func OrderLinesToDTO(lines []OrderLine) []OrderLineDTO {
	out := make([]OrderLineDTO, len(lines))
	for i, l := range lines {
		out[i] = OrderLineDTO{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

// OrderFromDTO строит заказ из входящего представления. Статус и дата клиента игнорируются.
func OrderFromDTO(dto OrderDTO) Order {
	return Order{
		ID:         dto.ID,
		CustomerID: dto.CustomerID,
		Lines:      OrderLinesFromDTO(dto.OrderLines),
	}
}

func OrderToDTO(o Order) OrderDTO {
	dto := OrderDTO{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		OrderLines: OrderLinesToDTO(o.Lines),
		Status:     string(o.Status),
	}
	if !o.CreatedAt.IsZero() {
		created := o.CreatedAt
		dto.Date = &created
	}
	return dto
}

func ProductFromDTO(dto ProductDTO) Product {
	return Product{
		ID:            dto.ID,
		Name:          dto.Name,
		Price:         dto.Price,
		ItemsInStock:  dto.ItemsInStock,
		ItemsReserved: dto.ItemsReserved,
	}
}

func ProductToDTO(p Product) ProductDTO {
	return ProductDTO{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		ItemsInStock:  p.ItemsInStock,
		ItemsReserved: p.ItemsReserved,
	}
}

func CustomerFromDTO(dto CustomerDTO) Customer {
	return Customer{
		ID:              dto.ID,
		Name:            dto.Name,
		Email:           dto.Email,
		Phone:           dto.Phone,
		BillingAddress:  dto.BillingAddress,
		ShippingAddress: dto.ShippingAddress,
		CreditStanding:  dto.CreditStanding,
	}
}

func CustomerToDTO(c Customer) CustomerDTO {
	return CustomerDTO{
		ID:              c.ID,
		Name:            c.Name,
		Email:           c.Email,
		Phone:           c.Phone,
		BillingAddress:  c.BillingAddress,
		ShippingAddress: c.ShippingAddress,
		CreditStanding:  c.CreditStanding,
	}
}
