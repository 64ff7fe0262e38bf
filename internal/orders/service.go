package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/freshcart/grocery-delivery/internal/assignment"
	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/earnings"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

const (
	DefaultLowStockThreshold = 4

	systemActor = "system"

	publishTimeout = 2 * time.Second
)

type Pricing struct {
	DeliveryFee       int64
	FreeDeliveryAbove int64
	DiscountPercent   int64
}

var DefaultPricing = Pricing{DeliveryFee: 4000, FreeDeliveryAbove: 50000}

func (p Pricing) feeFor(subtotal int64) int64 {
	if p.FreeDeliveryAbove > 0 && subtotal >= p.FreeDeliveryAbove {
		return 0
	}
	return p.DeliveryFee
}

func (p Pricing) discountFor(subtotal int64) int64 {
	if p.DiscountPercent <= 0 {
		return 0
	}
	return subtotal * p.DiscountPercent / 100
}

type Deps struct {
	Orders   OrderStore
	Stock    StockStore
	Partners assignment.PartnerLister
	Notifier Notifier
	Events   EventPublisher
	Logger   *slog.Logger
}

type Option func(*Service)

func WithLowStockThreshold(n int) Option {
	return func(s *Service) { s.lowStockThreshold = n }
}

func WithPricing(p Pricing) Option {
	return func(s *Service) { s.pricing = p }
}

func WithAutoAssignOnConfirm(enabled bool) Option {
	return func(s *Service) { s.autoAssignOnConfirm = enabled }
}

func WithEarningsRates(r earnings.Rates) Option {
	return func(s *Service) { s.rates = r }
}

func WithSelector(sel PartnerSelector) Option {
	return func(s *Service) { s.selector = sel }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	store    OrderStore
	stock    StockStore
	partners assignment.PartnerLister
	selector PartnerSelector
	notifier Notifier
	events   EventPublisher
	logger   *slog.Logger
	metrics  *serviceMetrics
	now      func() time.Time

	lowStockThreshold   int
	pricing             Pricing
	autoAssignOnConfirm bool
	rates               earnings.Rates
}

func NewService(deps Deps, opts ...Option) (*Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("orders: order store is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("orders: stock store is required")
	}
	if deps.Partners == nil {
		return nil, errors.New("orders: partner directory is required")
	}

	m, err := newServiceMetrics()
	if err != nil {
		return nil, fmt.Errorf("orders: create metrics: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:               deps.Orders,
		stock:               deps.Stock,
		partners:            deps.Partners,
		selector:            assignment.NewSelector(deps.Partners, deps.Orders),
		notifier:            deps.Notifier,
		events:              deps.Events,
		logger:              logger,
		metrics:             m,
		now:                 func() time.Time { return time.Now().UTC() },
		lowStockThreshold:   DefaultLowStockThreshold,
		pricing:             DefaultPricing,
		autoAssignOnConfirm: true,
		rates:               earnings.DefaultRates,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderInput struct {
	Items           []ItemRequest        `json:"items"`
	DeliveryAddress domain.Address       `json:"delivery_address"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
}

func (in *PlaceOrderInput) normalize() error {
	if len(in.Items) == 0 {
		return domain.NewValidationError("items", "order must contain at least one item")
	}

	merged := make(map[string]int, len(in.Items))
	var order []string
	for _, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.NewValidationError("items", "product id is required")
		}
		if item.Quantity <= 0 {
			return domain.NewValidationError("items", fmt.Sprintf("quantity for %s must be positive", item.ProductID))
		}
		if _, seen := merged[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		merged[item.ProductID] += item.Quantity
	}

	in.Items = make([]ItemRequest, 0, len(order))
	for _, id := range order {
		in.Items = append(in.Items, ItemRequest{ProductID: id, Quantity: merged[id]})
	}

	addr := in.DeliveryAddress
	switch {
	case strings.TrimSpace(addr.Line1) == "":
		return domain.NewValidationError("delivery_address.line1", "is required")
	case strings.TrimSpace(addr.City) == "":
		return domain.NewValidationError("delivery_address.city", "is required")
	case strings.TrimSpace(addr.PostalCode) == "":
		return domain.NewValidationError("delivery_address.postal_code", "is required")
	}

	switch in.PaymentMethod {
	case "":
		in.PaymentMethod = domain.PaymentMethodCOD
	case domain.PaymentMethodCOD, domain.PaymentMethodOnline:
	default:
		return domain.NewValidationError("payment_method", "must be COD or ONLINE")
	}

	return nil
}

func (s *Service) Place(ctx context.Context, actor identity.Identity, in PlaceOrderInput) (*domain.Order, error) {
	if !actor.Is(identity.RoleCustomer) {
		return nil, fmt.Errorf("%w: only customers can place orders", domain.ErrForbidden)
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	var lowStock []string
	for _, req := range in.Items {
		product, err := s.stock.Decrement(ctx, req.ProductID, req.Quantity)
		if err != nil {
			s.refund(ctx, "", items)
			return nil, fmt.Errorf("reserve %s: %w", req.ProductID, err)
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  req.Quantity,
		})
		if product.Stock < s.lowStockThreshold {
			lowStock = append(lowStock, fmt.Sprintf("%s (%d left)", product.Name, product.Stock))
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		CustomerID:      actor.ID,
		Items:           items,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		DeliveryAddress: in.DeliveryAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
	order.Recalculate()
	order.DeliveryFee = s.pricing.feeFor(order.Subtotal)
	order.Discount = s.pricing.discountFor(order.Subtotal)
	order.Recalculate()

	if len(lowStock) > 0 {
		order.Status = domain.OrderStatusPlaced
		order.RequiresConfirmation = true
		order.ConfirmationReason = "Low stock after order: " + strings.Join(lowStock, ", ")
	} else {
		by := systemActor
		order.Status = domain.OrderStatusConfirmed
		order.ConfirmedAt = &now
		order.ConfirmedBy = &by
	}

	if err := s.store.Create(ctx, order); err != nil {
		s.refund(ctx, order.ID, items)
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("requires_confirmation", order.RequiresConfirmation)))
	s.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"customer_id", order.CustomerID,
		"status", order.Status,
		"requires_confirmation", order.RequiresConfirmation,
	)

	if order.RequiresConfirmation {
		s.notify(ctx, "confirmation_required", order, func(n Notifier) error { return n.ConfirmationRequired(ctx, order) })
	} else {
		s.notify(ctx, "new_order", order, func(n Notifier) error { return n.NewOrder(ctx, order) })
	}
	s.publish(ctx, domain.OrderEventPlaced, order)

	return order, nil
}

// refund runs detached from the caller's cancellation.
func (s *Service) refund(ctx context.Context, orderID string, items []domain.OrderItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		if err := s.stock.Increment(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to refund stock",
				"error", err,
				"order_id", orderID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
			)
		}
	}
}

func (s *Service) notify(ctx context.Context, kind string, order *domain.Order, send func(Notifier) error) {
	if s.notifier == nil {
		s.logger.Warn("realtime layer unavailable, notification skipped", "notification", kind, "order_id", order.ID)
		return
	}
	if err := send(s.notifier); err != nil {
		s.metrics.notifyFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("notification", kind)))
		s.logger.Warn("notification not delivered", "notification", kind, "order_id", order.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, eventType domain.OrderEventType, order *domain.Order) {
	if s.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := domain.NewOrderEvent(eventType, order, s.now())
	if err := s.events.Publish(ctx, order.ID, event); err != nil {
		s.metrics.notifyFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("notification", string(eventType))))
		s.logger.Warn("failed to publish order event", "error", err, "order_id", order.ID, "event", eventType)
	}
}

func newOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return "ORD-" + at.Format("20060102") + "-" + suffix
}
