// Package earnings computes delivery-partner pay. It is reporting only and
// never feeds back into order state.
package earnings

import (
	"math"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

type Rates struct {
	Base          float64 `json:"base" yaml:"base"`
	PerItem       float64 `json:"per_item" yaml:"perItem"`
	DistanceBonus float64 `json:"distance_bonus" yaml:"distanceBonus"`
}

var DefaultRates = Rates{Base: 30, PerItem: 5, DistanceBonus: 10}

type Breakdown struct {
	OrderID       string  `json:"order_id"`
	OrderNumber   string  `json:"order_number"`
	ItemCount     int     `json:"item_count"`
	Base          float64 `json:"base"`
	ItemBonus     float64 `json:"item_bonus"`
	DistanceBonus float64 `json:"distance_bonus"`
	Total         float64 `json:"total"`
}

type Summary struct {
	Deliveries         int         `json:"deliveries"`
	Base               float64     `json:"base"`
	ItemBonus          float64     `json:"item_bonus"`
	DistanceBonus      float64     `json:"distance_bonus"`
	Total              float64     `json:"total"`
	AveragePerDelivery float64     `json:"average_per_delivery"`
	Orders             []Breakdown `json:"orders"`
}

// ForOrder counts line items, not summed quantity.
func (r Rates) ForOrder(order domain.Order) Breakdown {
	count := len(order.Items)
	b := Breakdown{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		ItemCount:     count,
		Base:          r.Base,
		ItemBonus:     r.PerItem * float64(count),
		DistanceBonus: r.DistanceBonus,
	}
	b.Total = b.Base + b.ItemBonus + b.DistanceBonus
	return b
}

func (r Rates) Summarize(orders []domain.Order) Summary {
	s := Summary{Orders: make([]Breakdown, 0, len(orders))}
	for _, order := range orders {
		b := r.ForOrder(order)
		s.Orders = append(s.Orders, b)
		s.Base += b.Base
		s.ItemBonus += b.ItemBonus
		s.DistanceBonus += b.DistanceBonus
		s.Total += b.Total
	}
	s.Deliveries = len(orders)
	if s.Deliveries > 0 {
		s.AveragePerDelivery = round2(s.Total / float64(s.Deliveries))
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
