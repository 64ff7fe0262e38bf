package orders

import (
	"context"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

// OrderStore persists orders. GetByID returns (nil, nil) for a missing order.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)

	CompareAndUpdate(ctx context.Context, order *domain.Order) (bool, error)

	// ClaimUnassigned returns (nil, nil) when the order was not claimable.
	ClaimUnassigned(ctx context.Context, orderID, partnerID string, at time.Time) (*domain.Order, error)

	CountByPartner(ctx context.Context, partnerID string, statuses []domain.OrderStatus) (int, error)
}

type ListFilter struct {
	CustomerID     string
	PartnerID      string
	Statuses       []domain.OrderStatus
	UnassignedOnly bool
	Limit          int
}

type StockStore interface {
	Decrement(ctx context.Context, productID string, quantity int) (*domain.Product, error)
	Increment(ctx context.Context, productID string, quantity int) error
}

type PartnerSelector interface {
	Select(ctx context.Context) (string, bool, error)
}

type Notifier interface {
	NewOrder(ctx context.Context, order *domain.Order) error
	ConfirmationRequired(ctx context.Context, order *domain.Order) error
	OrderAssigned(ctx context.Context, order *domain.Order) error
	StatusUpdated(ctx context.Context, order *domain.Order) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
