package realtime

import (
	"encoding/json"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

const (
	TypeRegister       = "register"
	TypeJoinOrder      = "join_order"
	TypeLeaveOrder     = "leave_order"
	TypeAcceptOrder    = "accept_order"
	TypeLocationUpdate = "location_update"
)

const (
	TypeRegistered           = "registered"
	TypeJoined               = "joined"
	TypeNewOrder             = "new_order"
	TypeOrderAssigned        = "order_assigned"
	TypeAcceptResult         = "accept_result"
	TypeConfirmationRequired = "confirmation_required"
	TypeStatusUpdated        = "status_updated"
	TypeError                = "error"
)

const (
	TopicBroadcast = "broadcast"
	TopicPartners  = "partners"
	TopicManagers  = "managers"
)

func PartnerTopic(id string) string  { return "partner:" + id }
func CustomerTopic(id string) string { return "customer:" + id }
func OrderTopic(id string) string    { return "order:" + id }

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type registerRequest struct {
	UserID string `json:"user_id"`
}

type orderRequest struct {
	OrderID string `json:"order_id"`
}

type acceptRequest struct {
	OrderID   string `json:"order_id"`
	PartnerID string `json:"partner_id"`
}

type locationRequest struct {
	OrderID string   `json:"order_id"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

type RegisteredPayload struct {
	UserID string   `json:"user_id"`
	Role   string   `json:"role"`
	Topics []string `json:"topics"`
}

type JoinedPayload struct {
	OrderID string `json:"order_id"`
}

type NewOrderPayload struct {
	OrderID         string             `json:"order_id"`
	OrderNumber     string             `json:"order_number"`
	Items           []domain.OrderItem `json:"items"`
	DeliveryAddress domain.Address     `json:"delivery_address"`
	FinalAmount     int64              `json:"final_amount"`
	CreatedAt       time.Time          `json:"created_at"`
	ConfirmedAt     *time.Time         `json:"confirmed_at,omitempty"`
}

type OrderAssignedPayload struct {
	OrderID   string `json:"order_id"`
	PartnerID string `json:"partner_id"`
}

type AcceptResultPayload struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type ConfirmationRequiredPayload struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Reason      string             `json:"reason"`
	Items       []domain.OrderItem `json:"items"`
}

type StatusUpdatedPayload struct {
	OrderID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) Message {
	return Message{Type: TypeError, Data: ErrorPayload{Message: msg}}
}
