package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	return domain.Order{
		ID:         1,
		CustomerID: 7,
		Status:     domain.OrderStatusCompleted,
		Lines: []domain.OrderLine{
			{ProductID: 1, Quantity: 3},
		},
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer",
			mut:  func(o *domain.Order) { o.CustomerID = 0 },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no lines",
			mut:  func(o *domain.Order) { o.Lines = nil },
			want: domain.ErrLinesRequired,
		},
		{
			name: "zero quantity",
			mut:  func(o *domain.Order) { o.Lines[0].Quantity = 0 },
			want: domain.ErrLineQtyInvalid,
		},
		{
			name: "negative quantity",
			mut:  func(o *domain.Order) { o.Lines[0].Quantity = -2 },
			want: domain.ErrLineQtyInvalid,
		},
		{
			name: "missing product",
			mut:  func(o *domain.Order) { o.Lines[0].ProductID = 0 },
			want: domain.ErrLineProductRequired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusCompleted, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPaid, domain.OrderStatusCancelled, true},
		{domain.OrderStatusCancelled, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusShipped, true},
		{domain.OrderStatusCancelled, domain.OrderStatusPaid, true},
		{domain.OrderStatusPaid, domain.OrderStatusShipped, true},
		{domain.OrderStatusShipped, domain.OrderStatusPaid, true},
		{domain.OrderStatusCompleted, domain.OrderStatusCompleted, false},
		{domain.OrderStatus("bogus"), domain.OrderStatusShipped, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
				t.Fatalf("CanTransitionTo() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProductAvailable(t *testing.T) {
	p := domain.Product{ItemsInStock: 10, ItemsReserved: 4}
	if got := p.Available(); got != 6 {
		t.Fatalf("Available() = %d, want 6", got)
	}
}

func TestCustomerHasGoodStanding(t *testing.T) {
	if !(domain.Customer{CreditStanding: 0}).HasGoodStanding() {
		t.Fatalf("zero standing must be accepted")
	}
	if (domain.Customer{CreditStanding: -1}).HasGoodStanding() {
		t.Fatalf("negative standing must be rejected")
	}
}
