package domain

import "time"

type OrderEventType string

const (
	OrderEventPlaced        OrderEventType = "order.placed"
	OrderEventStatusUpdated OrderEventType = "order.status_updated"
	OrderEventAssigned      OrderEventType = "order.assigned"
	OrderEventRated         OrderEventType = "order.rated"
)

type OrderEvent struct {
	Type        OrderEventType `json:"type"`
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	CustomerID  string         `json:"customer_id"`
	Status      OrderStatus    `json:"status"`
	PartnerID   string         `json:"partner_id,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	FinalAmount int64          `json:"final_amount"`
	Timestamp   time.Time      `json:"timestamp"`
}

func NewOrderEvent(eventType OrderEventType, order *Order, at time.Time) OrderEvent {
	event := OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		FinalAmount: order.FinalAmount,
		Timestamp:   at,
	}
	if order.AssignedPartnerID != nil {
		event.PartnerID = *order.AssignedPartnerID
	}
	switch {
	case order.Status == OrderStatusCancelled:
		event.Reason = order.CancellationReason
	case order.RequiresConfirmation:
		event.Reason = order.ConfirmationReason
	}
	return event
}

func (e OrderEvent) EventType() string {
	return string(e.Type)
}
