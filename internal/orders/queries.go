package orders

import (
	"context"
	"fmt"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/earnings"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

const defaultListLimit = 100

func (s *Service) Get(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if !canView(actor, order) {
		return nil, fmt.Errorf("%w: order belongs to someone else", domain.ErrForbidden)
	}
	return order, nil
}

func canView(actor identity.Identity, order *domain.Order) bool {
	switch actor.Role {
	case identity.RoleStoreManager, identity.RoleAdmin:
		return true
	case identity.RoleCustomer:
		return order.CustomerID == actor.ID
	case identity.RoleDeliveryPartner:
		return order.AssignedTo(actor.ID) || order.Available()
	}
	return false
}

func (s *Service) List(ctx context.Context, actor identity.Identity, statuses []domain.OrderStatus) ([]domain.Order, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", st))
		}
	}

	filter := ListFilter{Statuses: statuses, Limit: defaultListLimit}
	switch {
	case actor.Staff():
	case actor.Is(identity.RoleCustomer):
		filter.CustomerID = actor.ID
	case actor.Is(identity.RoleDeliveryPartner):
		filter.PartnerID = actor.ID
	default:
		return nil, domain.ErrForbidden
	}

	orders, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *Service) ListAvailable(ctx context.Context, actor identity.Identity) ([]domain.Order, error) {
	if !actor.Is(identity.RoleDeliveryPartner) && !actor.Staff() {
		return nil, fmt.Errorf("%w: only delivery partners can browse available orders", domain.ErrForbidden)
	}

	orders, err := s.store.List(ctx, ListFilter{
		Statuses:       []domain.OrderStatus{domain.OrderStatusConfirmed},
		UnassignedOnly: true,
		Limit:          defaultListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list available orders: %w", err)
	}
	return orders, nil
}

func (s *Service) Earnings(ctx context.Context, actor identity.Identity) (earnings.Summary, error) {
	if !actor.Is(identity.RoleDeliveryPartner) {
		return earnings.Summary{}, fmt.Errorf("%w: only delivery partners have earnings", domain.ErrForbidden)
	}

	delivered, err := s.store.List(ctx, ListFilter{
		PartnerID: actor.ID,
		Statuses:  []domain.OrderStatus{domain.OrderStatusDelivered},
	})
	if err != nil {
		return earnings.Summary{}, fmt.Errorf("list delivered orders: %w", err)
	}

	return s.rates.Summarize(delivered), nil
}
