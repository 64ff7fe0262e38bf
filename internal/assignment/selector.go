// Package assignment picks a delivery partner for an order when nobody
// claimed it by hand.
package assignment

import (
	"context"
	"fmt"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

type PartnerLister interface {
	ListDeliveryPartners(ctx context.Context) ([]string, error)
}

type LoadCounter interface {
	CountByPartner(ctx context.Context, partnerID string, statuses []domain.OrderStatus) (int, error)
}

type Selector struct {
	partners PartnerLister
	load     LoadCounter
}

func NewSelector(partners PartnerLister, load LoadCounter) *Selector {
	return &Selector{partners: partners, load: load}
}

// Select picks the fewest PREPARING or OUT_FOR_DELIVERY orders, first listed on ties.
func (s *Selector) Select(ctx context.Context) (string, bool, error) {
	partners, err := s.partners.ListDeliveryPartners(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list delivery partners: %w", err)
	}

	best := ""
	bestLoad := -1
	for _, id := range partners {
		n, err := s.load.CountByPartner(ctx, id, domain.ActiveStatuses)
		if err != nil {
			return "", false, fmt.Errorf("count active orders for partner %s: %w", id, err)
		}
		if bestLoad < 0 || n < bestLoad {
			best, bestLoad = id, n
		}
	}

	return best, bestLoad >= 0, nil
}
