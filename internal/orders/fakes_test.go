package orders

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/identity"
	"github.com/freshcart/grocery-delivery/internal/inventory"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	// beforeUpdate runs under the lock ahead of every compare-and-update.
	beforeUpdate func(stored *domain.Order)
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*domain.Order)}
}

func (m *memOrders) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (m *memOrders) List(_ context.Context, filter ListFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Order{}
	for _, o := range m.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.PartnerID != "" && !o.AssignedTo(filter.PartnerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		if filter.UnassignedOnly && o.AssignedPartnerID != nil {
			continue
		}
		out = append(out, *o.Clone())
	}
	return out, nil
}

func (m *memOrders) CompareAndUpdate(_ context.Context, order *domain.Order) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.ID]
	if !ok {
		return false, nil
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(stored)
	}
	if stored.Version != order.Version {
		return false, nil
	}
	order.Version++
	m.orders[order.ID] = order.Clone()
	return true, nil
}

func (m *memOrders) ClaimUnassigned(_ context.Context, orderID, partnerID string, at time.Time) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || !o.Available() {
		return nil, nil
	}
	id := partnerID
	o.AssignedPartnerID = &id
	o.Status = domain.OrderStatusPreparing
	o.AssignedAt = &at
	o.UpdatedAt = at
	o.Version++
	return o.Clone(), nil
}

func (m *memOrders) CountByPartner(_ context.Context, partnerID string, statuses []domain.OrderStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.AssignedTo(partnerID) && slices.Contains(statuses, o.Status) {
			n++
		}
	}
	return n, nil
}

func (m *memOrders) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
}

type memStock struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func newMemStock(products ...domain.Product) *memStock {
	s := &memStock{products: make(map[string]*domain.Product)}
	for _, p := range products {
		s.products[p.ID] = &p
	}
	return s
}

func (s *memStock) Decrement(_ context.Context, productID string, quantity int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	if p.Stock < quantity {
		return nil, inventory.ErrInsufficientStock
	}
	p.Stock -= quantity
	c := *p
	return &c, nil
}

func (s *memStock) Increment(_ context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Stock += quantity
	return nil
}

func (s *memStock) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

type staticPartners []string

func (p staticPartners) ListDeliveryPartners(context.Context) ([]string, error) {
	return p, nil
}

type notification struct {
	kind    string
	orderID string
	status  domain.OrderStatus
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) record(kind string, o *domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: kind, orderID: o.ID, status: o.Status})
	return n.err
}

func (n *recordingNotifier) NewOrder(_ context.Context, o *domain.Order) error {
	return n.record("new_order", o)
}

func (n *recordingNotifier) ConfirmationRequired(_ context.Context, o *domain.Order) error {
	return n.record("confirmation_required", o)
}

func (n *recordingNotifier) OrderAssigned(_ context.Context, o *domain.Order) error {
	return n.record("order_assigned", o)
}

func (n *recordingNotifier) StatusUpdated(_ context.Context, o *domain.Order) error {
	return n.record("status_updated", o)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.kind
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.OrderEvent))
	return nil
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

var (
	customer = identity.Identity{ID: "cust-1", Role: identity.RoleCustomer}
	manager  = identity.Identity{ID: "mgr-1", Role: identity.RoleStoreManager}
	partner1 = identity.Identity{ID: "partner-1", Role: identity.RoleDeliveryPartner}
	partner2 = identity.Identity{ID: "partner-2", Role: identity.RoleDeliveryPartner}

	testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
)

type fixture struct {
	svc       *Service
	orders    *memOrders
	stock     *memStock
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T, partners staticPartners, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		orders: newMemOrders(),
		stock: newMemStock(
			domain.Product{ID: "ITEM-001", Name: "Milk", Price: 6000, Stock: 100},
			domain.Product{ID: "ITEM-002", Name: "Bread", Price: 4500, Stock: 100},
			domain.Product{ID: "ITEM-003", Name: "Saffron", Price: 90000, Stock: 5},
		),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	svc, err := NewService(Deps{
		Orders:   f.orders,
		Stock:    f.stock,
		Partners: partners,
		Notifier: f.notifier,
		Events:   f.publisher,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func testAddress() domain.Address {
	return domain.Address{Line1: "12 Marine Drive", City: "Mumbai", PostalCode: "400020"}
}

func (f *fixture) place(t *testing.T, items ...ItemRequest) *domain.Order {
	t.Helper()
	order, err := f.svc.Place(context.Background(), customer, PlaceOrderInput{
		Items:           items,
		DeliveryAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	return order
}

// preparing places an order and lets partner claim it.
func (f *fixture) preparing(t *testing.T, partner identity.Identity) *domain.Order {
	t.Helper()
	order := f.place(t, ItemRequest{ProductID: "ITEM-001", Quantity: 1})
	claimed, err := f.svc.Accept(context.Background(), partner, order.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return claimed
}
