package domain

import "time"

type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "PLACED"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

var ActiveStatuses = []OrderStatus{OrderStatusPreparing, OrderStatusOutForDelivery}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CarriesPartner() bool {
	switch s {
	case OrderStatusPreparing, OrderStatusOutForDelivery, OrderStatusDelivered:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

type Address struct {
	Line1      string   `json:"line1"`
	Line2      string   `json:"line2,omitempty"`
	City       string   `json:"city"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postal_code"`
	Phone      string   `json:"phone,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
}

type Rating struct {
	Delivery  int       `json:"delivery"`
	Product   int       `json:"product"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	CustomerID  string      `json:"customer_id"`
	Items       []OrderItem `json:"items"`

	Subtotal      int64         `json:"subtotal"`
	DeliveryFee   int64         `json:"delivery_fee"`
	Discount      int64         `json:"discount"`
	FinalAmount   int64         `json:"final_amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	DeliveryAddress Address     `json:"delivery_address"`
	Status          OrderStatus `json:"status"`

	AssignedPartnerID    *string `json:"assigned_partner_id"`
	RequiresConfirmation bool    `json:"requires_confirmation"`
	ConfirmationReason   string  `json:"confirmation_reason,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy        *string    `json:"confirmed_by,omitempty"`
	AssignedAt         *time.Time `json:"assigned_at,omitempty"`
	PickedUpAt         *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	Rating *Rating `json:"rating,omitempty"`

	Version int64 `json:"version"`
}

func (o *Order) Recalculate() {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.LineTotal()
	}
	o.Subtotal = subtotal
	o.FinalAmount = o.Subtotal + o.DeliveryFee - o.Discount
}

func (o *Order) AssignedTo(partnerID string) bool {
	return o.AssignedPartnerID != nil && *o.AssignedPartnerID == partnerID
}

func (o *Order) Available() bool {
	return o.Status == OrderStatusConfirmed && o.AssignedPartnerID == nil
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.AssignedPartnerID != nil {
		id := *o.AssignedPartnerID
		c.AssignedPartnerID = &id
	}
	if o.Rating != nil {
		r := *o.Rating
		c.Rating = &r
	}
	return &c
}
