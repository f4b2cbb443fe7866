package domain

// Customer принадлежит сервису аккаунтов.
// CreditStanding знаковый: отрицательное значение означает превышение лимита.
type Customer struct {
	ID              int64
	Name            string
	Email           string
	Phone           string
	BillingAddress  string
	ShippingAddress string
	CreditStanding  int64
	Version         int64
}

// HasGoodStanding сообщает, может ли клиент оформлять заказы.
func (c Customer) HasGoodStanding() bool {
	return c.CreditStanding >= 0
}
