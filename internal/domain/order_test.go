package domain

import (
	"errors"
	"testing"
)

func TestOrder_Recalculate(t *testing.T) {
	order := &Order{
		Items: []OrderItem{
			{ProductID: "p1", Price: 2500, Quantity: 2},
			{ProductID: "p2", Price: 1000, Quantity: 3},
		},
		DeliveryFee: 4000,
		Discount:    500,
		FinalAmount: 1,
	}

	order.Recalculate()

	if order.Subtotal != 8000 {
		t.Errorf("expected subtotal 8000, got %d", order.Subtotal)
	}
	if order.FinalAmount != 11500 {
		t.Errorf("expected final amount 11500, got %d", order.FinalAmount)
	}
}

func TestOrderStatus_CarriesPartner(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPlaced, false},
		{OrderStatusConfirmed, false},
		{OrderStatusPreparing, true},
		{OrderStatusOutForDelivery, true},
		{OrderStatusDelivered, true},
		{OrderStatusCancelled, false},
	}

	for _, tt := range tests {
		if got := tt.status.CarriesPartner(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}

func TestTransitionError_IsInvalidTransition(t *testing.T) {
	err := error(&TransitionError{Action: "pickup", From: OrderStatusConfirmed})

	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("expected transition error to match ErrInvalidTransition")
	}
	if err.Error() != "cannot pickup order in status CONFIRMED" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestOrder_Clone(t *testing.T) {
	partner := "partner-1"
	order := &Order{ID: "o1", AssignedPartnerID: &partner, Items: []OrderItem{{ProductID: "p1"}}}

	clone := order.Clone()
	*clone.AssignedPartnerID = "partner-2"
	clone.Items[0].ProductID = "p2"

	if *order.AssignedPartnerID != "partner-1" {
		t.Error("clone shares assigned partner pointer")
	}
	if order.Items[0].ProductID != "p1" {
		t.Error("clone shares items backing array")
	}
}
