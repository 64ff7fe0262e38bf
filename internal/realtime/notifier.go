package realtime

import (
	"context"

	"github.com/freshcart/grocery-delivery/internal/domain"
)


func (h *Hub) NewOrder(ctx context.Context, order *domain.Order) error {
	_, err := h.Publish(ctx, Message{Type: TypeNewOrder, Data: NewOrderPayload{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Items:           order.Items,
		DeliveryAddress: order.DeliveryAddress,
		FinalAmount:     order.FinalAmount,
		CreatedAt:       order.CreatedAt,
		ConfirmedAt:     order.ConfirmedAt,
	}}, TopicPartners)
	return err
}

func (h *Hub) ConfirmationRequired(ctx context.Context, order *domain.Order) error {
	_, err := h.Publish(ctx, Message{Type: TypeConfirmationRequired, Data: ConfirmationRequiredPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      order.ConfirmationReason,
		Items:       order.Items,
	}}, TopicManagers)
	return err
}

func (h *Hub) OrderAssigned(ctx context.Context, order *domain.Order) error {
	var partnerID string
	if order.AssignedPartnerID != nil {
		partnerID = *order.AssignedPartnerID
	}
	_, err := h.Publish(ctx, Message{Type: TypeOrderAssigned, Data: OrderAssignedPayload{
		OrderID:   order.ID,
		PartnerID: partnerID,
	}}, TopicBroadcast, PartnerTopic(partnerID))

	if n := h.dropFollowers(order.ID, partnerID); n > 0 {
		h.logger.Debug("partners unsubscribed from assigned order", "order_id", order.ID, "count", n)
	}
	return err
}

func (h *Hub) StatusUpdated(ctx context.Context, order *domain.Order) error {
	_, err := h.Publish(ctx, Message{Type: TypeStatusUpdated, Data: StatusUpdatedPayload{
		OrderID:   order.ID,
		Status:    order.Status,
		Timestamp: order.UpdatedAt,
	}}, TopicBroadcast, CustomerTopic(order.CustomerID))
	return err
}

func (h *Hub) LocationUpdated(ctx context.Context, update domain.LocationUpdate) error {
	_, err := h.Publish(ctx, Message{Type: TypeLocationUpdate, Data: update}, OrderTopic(update.OrderID))
	return err
}
