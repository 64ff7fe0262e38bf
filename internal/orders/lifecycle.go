package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

const maxTransitionAttempts = 3

// transition retries apply against the latest stored version.
func (s *Service) transition(ctx context.Context, orderID string, apply func(o *domain.Order) error) (*domain.Order, error) {
	for range maxTransitionAttempts {
		current, err := s.store.GetByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if current == nil {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}

		next := current.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = s.now()
		next.Recalculate()
		if err := checkInvariants(next); err != nil {
			return nil, err
		}

		ok, err := s.store.CompareAndUpdate(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("update order: %w", err)
		}
		if ok {
			return next, nil
		}
		s.logger.Debug("order changed concurrently, retrying", "order_id", orderID)
	}
	return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrConflict)
}

func checkInvariants(o *domain.Order) error {
	if o.AssignedPartnerID != nil && !o.Status.CarriesPartner() {
		return fmt.Errorf("order %s: partner set while %s", o.ID, o.Status)
	}
	if o.FinalAmount != o.Subtotal+o.DeliveryFee-o.Discount {
		return fmt.Errorf("order %s: final amount does not match its components", o.ID)
	}
	return nil
}

func (s *Service) Confirm(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	if !actor.Staff() {
		return nil, fmt.Errorf("%w: only store managers can confirm orders", domain.ErrForbidden)
	}

	current, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err := confirmable(current, "confirm"); err != nil {
		return nil, err
	}

	var partnerID string
	if s.autoAssignOnConfirm {
		id, found, err := s.selector.Select(ctx)
		if err != nil {
			return nil, fmt.Errorf("select delivery partner: %w", err)
		}
		if found {
			partnerID = id
		} else {
			s.logger.Info("no delivery partner available, order will be broadcast", "order_id", orderID)
		}
	}

	order, err := s.transition(ctx, orderID, func(o *domain.Order) error {
		if err := confirmable(o, "confirm"); err != nil {
			return err
		}
		now := s.now()
		by := actor.ID
		o.Status = domain.OrderStatusConfirmed
		o.RequiresConfirmation = false
		o.ConfirmedAt = &now
		o.ConfirmedBy = &by
		if partnerID != "" {
			o.Status = domain.OrderStatusPreparing
			o.AssignedPartnerID = &partnerID
			o.AssignedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.transition(ctx, "confirm")
	s.logger.Info("order confirmed", "order_id", order.ID, "confirmed_by", actor.ID, "partner_id", partnerID)

	s.statusChanged(ctx, order)
	if order.AssignedPartnerID != nil {
		s.assigned(ctx, order)
	} else {
		s.notify(ctx, "new_order", order, func(n Notifier) error { return n.NewOrder(ctx, order) })
	}

	return order, nil
}

func (s *Service) Reject(ctx context.Context, actor identity.Identity, orderID, reason string) (*domain.Order, error) {
	if !actor.Staff() {
		return nil, fmt.Errorf("%w: only store managers can reject orders", domain.ErrForbidden)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Rejected by store: insufficient stock"
	}

	order, err := s.transition(ctx, orderID, func(o *domain.Order) error {
		if err := confirmable(o, "reject"); err != nil {
			return err
		}
		markCancelled(o, s.now(), reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refund(ctx, order.ID, order.Items)

	s.metrics.transition(ctx, "reject")
	s.logger.Info("order rejected", "order_id", order.ID, "rejected_by", actor.ID, "reason", reason)
	s.statusChanged(ctx, order)

	return order, nil
}

func confirmable(o *domain.Order, action string) error {
	if o.Status != domain.OrderStatusPlaced || !o.RequiresConfirmation {
		return &domain.TransitionError{Action: action, From: o.Status}
	}
	return nil
}

// Accept is a partner claiming an order. Losers get domain.ErrRaceLost.
func (s *Service) Accept(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	if !actor.Is(identity.RoleDeliveryPartner) {
		return nil, fmt.Errorf("%w: only delivery partners can accept orders", domain.ErrForbidden)
	}

	order, err := s.claim(ctx, orderID, actor.ID)
	if err != nil {
		if errors.Is(err, domain.ErrRaceLost) {
			s.metrics.claim(ctx, "lost")
			s.logger.Info("claim lost", "order_id", orderID, "partner_id", actor.ID)
		}
		return nil, err
	}

	s.metrics.claim(ctx, "won")
	s.logger.Info("order accepted", "order_id", order.ID, "partner_id", actor.ID)
	return order, nil
}

func (s *Service) Assign(ctx context.Context, actor identity.Identity, orderID, partnerID string) (*domain.Order, bool, error) {
	if !actor.Staff() {
		return nil, false, fmt.Errorf("%w: only store managers can assign orders", domain.ErrForbidden)
	}

	if partnerID == "" {
		id, found, err := s.selector.Select(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("select delivery partner: %w", err)
		}
		if !found {
			current, err := s.store.GetByID(ctx, orderID)
			if err != nil {
				return nil, false, fmt.Errorf("get order: %w", err)
			}
			if current == nil {
				return nil, false, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
			}
			if current.Available() {
				s.notify(ctx, "new_order", current, func(n Notifier) error { return n.NewOrder(ctx, current) })
			}
			return current, false, nil
		}
		partnerID = id
	} else {
		partners, err := s.partners.ListDeliveryPartners(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("list delivery partners: %w", err)
		}
		if !slices.Contains(partners, partnerID) {
			return nil, false, domain.NewValidationError("partner_id", "is not a delivery partner")
		}
	}

	order, err := s.claim(ctx, orderID, partnerID)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("order assigned", "order_id", order.ID, "partner_id", partnerID, "assigned_by", actor.ID)
	return order, true, nil
}

// The conditional write alone decides the winner.
func (s *Service) claim(ctx context.Context, orderID, partnerID string) (*domain.Order, error) {
	current, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err := claimable(current); err != nil {
		return nil, err
	}

	order, err := s.store.ClaimUnassigned(ctx, orderID, partnerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim order: %w", err)
	}
	if order == nil {
		latest, err := s.store.GetByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		if latest == nil {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		if err := claimable(latest); err != nil {
			return nil, err
		}
		return nil, domain.ErrRaceLost
	}

	s.metrics.transition(ctx, "assign")
	s.statusChanged(ctx, order)
	s.assigned(ctx, order)

	return order, nil
}

func claimable(o *domain.Order) error {
	if o.AssignedPartnerID != nil {
		return domain.ErrRaceLost
	}
	if o.Status != domain.OrderStatusConfirmed {
		return &domain.TransitionError{Action: "accept", From: o.Status}
	}
	return nil
}

func (s *Service) Pickup(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, func(o *domain.Order) error {
		if !o.AssignedTo(actor.ID) || !actor.Is(identity.RoleDeliveryPartner) {
			return fmt.Errorf("%w: only the assigned partner can pick up this order", domain.ErrForbidden)
		}
		if o.Status != domain.OrderStatusPreparing {
			return &domain.TransitionError{Action: "pickup", From: o.Status}
		}
		now := s.now()
		o.Status = domain.OrderStatusOutForDelivery
		o.PickedUpAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.transition(ctx, "pickup")
	s.logger.Info("order picked up", "order_id", order.ID, "partner_id", actor.ID)
	s.statusChanged(ctx, order)

	return order, nil
}

func (s *Service) Deliver(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, func(o *domain.Order) error {
		if !o.AssignedTo(actor.ID) || !actor.Is(identity.RoleDeliveryPartner) {
			return fmt.Errorf("%w: only the assigned partner can deliver this order", domain.ErrForbidden)
		}
		if o.Status != domain.OrderStatusOutForDelivery {
			return &domain.TransitionError{Action: "deliver", From: o.Status}
		}
		now := s.now()
		o.Status = domain.OrderStatusDelivered
		o.DeliveredAt = &now
		if o.PaymentMethod == domain.PaymentMethodCOD {
			o.PaymentStatus = domain.PaymentStatusCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.transition(ctx, "deliver")
	s.logger.Info("order delivered", "order_id", order.ID, "partner_id", actor.ID, "payment_status", order.PaymentStatus)
	s.statusChanged(ctx, order)

	return order, nil
}

func (s *Service) Cancel(ctx context.Context, actor identity.Identity, orderID, reason string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, func(o *domain.Order) error {
		owner := actor.Is(identity.RoleCustomer) && o.CustomerID == actor.ID
		if !owner && !actor.Staff() {
			return fmt.Errorf("%w: only the customer or store staff can cancel this order", domain.ErrForbidden)
		}
		if o.Status.Terminal() {
			return &domain.TransitionError{Action: "cancel", From: o.Status}
		}
		if strings.TrimSpace(reason) == "" {
			if owner {
				reason = "Cancelled by customer"
			} else {
				reason = "Cancelled by store"
			}
		}
		markCancelled(o, s.now(), reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.refund(ctx, order.ID, order.Items)

	s.metrics.transition(ctx, "cancel")
	s.logger.Info("order cancelled", "order_id", order.ID, "cancelled_by", actor.ID, "reason", order.CancellationReason)
	s.statusChanged(ctx, order)

	return order, nil
}

func markCancelled(o *domain.Order, now time.Time, reason string) {
	o.Status = domain.OrderStatusCancelled
	o.CancelledAt = &now
	o.CancellationReason = reason
	o.RequiresConfirmation = false
	o.AssignedPartnerID = nil
	if o.PaymentStatus == domain.PaymentStatusCompleted {
		o.PaymentStatus = domain.PaymentStatusRefunded
	}
}

type RatingInput struct {
	Delivery int    `json:"delivery"`
	Product  int    `json:"product"`
	Comment  string `json:"comment"`
}

func (in RatingInput) validate() error {
	if in.Delivery < 1 || in.Delivery > 5 {
		return domain.NewValidationError("delivery", "rating must be between 1 and 5")
	}
	if in.Product < 1 || in.Product > 5 {
		return domain.NewValidationError("product", "rating must be between 1 and 5")
	}
	return nil
}

func (s *Service) Rate(ctx context.Context, actor identity.Identity, orderID string, in RatingInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	order, err := s.transition(ctx, orderID, func(o *domain.Order) error {
		if !actor.Is(identity.RoleCustomer) || o.CustomerID != actor.ID {
			return fmt.Errorf("%w: only the customer who placed the order can rate it", domain.ErrForbidden)
		}
		if o.Status != domain.OrderStatusDelivered {
			return &domain.TransitionError{Action: "rate", From: o.Status}
		}
		if o.Rating != nil {
			return domain.ErrAlreadyRated
		}
		o.Rating = &domain.Rating{
			Delivery:  in.Delivery,
			Product:   in.Product,
			Comment:   strings.TrimSpace(in.Comment),
			CreatedAt: s.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order rated", "order_id", order.ID, "delivery", in.Delivery, "product", in.Product)
	s.publish(ctx, domain.OrderEventRated, order)

	return order, nil
}

func (s *Service) statusChanged(ctx context.Context, order *domain.Order) {
	s.notify(ctx, "status_updated", order, func(n Notifier) error { return n.StatusUpdated(ctx, order) })
	s.publish(ctx, domain.OrderEventStatusUpdated, order)
}

func (s *Service) assigned(ctx context.Context, order *domain.Order) {
	s.notify(ctx, "order_assigned", order, func(n Notifier) error { return n.OrderAssigned(ctx, order) })
	s.publish(ctx, domain.OrderEventAssigned, order)
}
