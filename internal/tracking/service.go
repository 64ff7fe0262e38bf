package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/geo"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// Store.Save reports false when the record changed since it was read.
type Store interface {
	Get(ctx context.Context, orderID string) (*domain.DeliveryTracking, error)
	Save(ctx context.Context, t *domain.DeliveryTracking) (bool, error)
}

type Notifier interface {
	LocationUpdated(ctx context.Context, update domain.LocationUpdate) error
}

const maxPushAttempts = 3

type Settings struct {
	AverageSpeedKmh float64
	NearbyKm        float64
	HistoryLimit    int
	DefaultLocation domain.Location
}

var DefaultSettings = Settings{
	AverageSpeedKmh: 20,
	NearbyKm:        0.5,
	HistoryLimit:    500,
	DefaultLocation: domain.Location{Lat: 19.0760, Lon: 72.8777},
}

type Option func(*Service)

func WithSettings(s Settings) Option {
	return func(svc *Service) { svc.settings = s }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

type Service struct {
	orders   OrderReader
	store    Store
	notifier Notifier
	logger   *slog.Logger
	settings Settings
	now      func() time.Time
}

func NewService(orders OrderReader, store Store, notifier Notifier, logger *slog.Logger, opts ...Option) (*Service, error) {
	if orders == nil || store == nil {
		return nil, errors.New("tracking: order reader and store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		orders:   orders,
		store:    store,
		notifier: notifier,
		logger:   logger,
		settings: DefaultSettings,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Push(ctx context.Context, actor identity.Identity, orderID string, loc domain.Location) (*domain.DeliveryTracking, error) {
	if loc.Lat < -90 || loc.Lat > 90 {
		return nil, domain.NewValidationError("lat", "must be between -90 and 90")
	}
	if loc.Lon < -180 || loc.Lon > 180 {
		return nil, domain.NewValidationError("lon", "must be between -180 and 180")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if !actor.Is(identity.RoleDeliveryPartner) || !order.AssignedTo(actor.ID) {
		return nil, fmt.Errorf("%w: only the assigned partner can report its location", domain.ErrForbidden)
	}

	destination := s.destination(order)
	for range maxPushAttempts {
		current, err := s.record(ctx, actor, order, loc, destination)
		if err != nil {
			return nil, err
		}
		if current == nil {
			continue
		}

		s.logger.Debug("location recorded",
			"order_id", orderID,
			"partner_id", actor.ID,
			"distance_km", current.DistanceKm,
			"status", current.Status,
		)

		s.notify(ctx, domain.LocationUpdate{
			OrderID:    orderID,
			Location:   loc,
			DistanceKm: current.DistanceKm,
			ETA:        current.EstimatedAt,
			Status:     current.Status,
		})

		return current, nil
	}

	return nil, fmt.Errorf("tracking for order %s changed concurrently: %w", orderID, domain.ErrConflict)
}

func (s *Service) record(ctx context.Context, actor identity.Identity, order *domain.Order, loc, destination domain.Location) (*domain.DeliveryTracking, error) {
	current, err := s.store.Get(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("get tracking: %w", err)
	}

	now := s.now()
	if current == nil {
		current = &domain.DeliveryTracking{
			OrderID:   order.ID,
			Status:    domain.TrackingStatusAssigned,
			CreatedAt: now,
		}
	}

	distance := geo.Between(loc, destination)

	current.PartnerID = actor.ID
	current.CurrentLocation = loc
	current.DistanceKm = distance
	current.EstimatedAt = geo.EstimateArrival(now, distance, s.settings.AverageSpeedKmh)
	current.Status = s.deriveStatus(current.Status, order.Status, distance)
	current.History = appendCapped(current.History, domain.LocationPoint{Location: loc, RecordedAt: now}, s.settings.HistoryLimit)
	current.UpdatedAt = now

	saved, err := s.store.Save(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("save tracking: %w", err)
	}
	if !saved {
		return nil, nil
	}
	return current, nil
}

func (s *Service) Get(ctx context.Context, actor identity.Identity, orderID string) (*domain.DeliveryTracking, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}

	allowed := actor.Staff() ||
		(actor.Is(identity.RoleCustomer) && order.CustomerID == actor.ID) ||
		(actor.Is(identity.RoleDeliveryPartner) && order.AssignedTo(actor.ID))
	if !allowed {
		return nil, fmt.Errorf("%w: order belongs to someone else", domain.ErrForbidden)
	}

	t, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get tracking: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("tracking for order %s: %w", orderID, domain.ErrNotFound)
	}
	return t, nil
}

func (s *Service) destination(order *domain.Order) domain.Location {
	addr := order.DeliveryAddress
	if addr.Lat == nil || addr.Lon == nil {
		return s.settings.DefaultLocation
	}
	return domain.Location{Lat: *addr.Lat, Lon: *addr.Lon}
}

// deriveStatus never goes back to an earlier stage on its own.
func (s *Service) deriveStatus(prior domain.TrackingStatus, orderStatus domain.OrderStatus, distanceKm float64) domain.TrackingStatus {
	switch {
	case orderStatus == domain.OrderStatusDelivered:
		return domain.TrackingStatusDelivered
	case distanceKm < s.settings.NearbyKm:
		return domain.TrackingStatusNearby
	case orderStatus == domain.OrderStatusOutForDelivery:
		return domain.TrackingStatusInTransit
	}
	return prior
}

func appendCapped(history []domain.LocationPoint, p domain.LocationPoint, limit int) []domain.LocationPoint {
	history = append(history, p)
	if limit > 0 && len(history) > limit {
		history = append([]domain.LocationPoint(nil), history[len(history)-limit:]...)
	}
	return history
}

func (s *Service) notify(ctx context.Context, update domain.LocationUpdate) {
	if s.notifier == nil {
		s.logger.Warn("realtime layer unavailable, location update skipped", "order_id", update.OrderID)
		return
	}
	if err := s.notifier.LocationUpdated(ctx, update); err != nil {
		s.logger.Warn("location update not delivered", "order_id", update.OrderID, "error", err)
	}
}
