package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/earnings"
	"github.com/freshcart/grocery-delivery/internal/identity"
	"github.com/freshcart/grocery-delivery/internal/inventory"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
)

type OrderService interface {
	Place(ctx context.Context, actor identity.Identity, in PlaceOrderInput) (*domain.Order, error)
	Get(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
	List(ctx context.Context, actor identity.Identity, statuses []domain.OrderStatus) ([]domain.Order, error)
	ListAvailable(ctx context.Context, actor identity.Identity) ([]domain.Order, error)
	Confirm(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
	Reject(ctx context.Context, actor identity.Identity, orderID, reason string) (*domain.Order, error)
	Assign(ctx context.Context, actor identity.Identity, orderID, partnerID string) (*domain.Order, bool, error)
	Accept(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
	Pickup(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
	Deliver(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
	Cancel(ctx context.Context, actor identity.Identity, orderID, reason string) (*domain.Order, error)
	Rate(ctx context.Context, actor identity.Identity, orderID string, in RatingInput) (*domain.Order, error)
	Earnings(ctx context.Context, actor identity.Identity) (earnings.Summary, error)
}

type Handler struct {
	service OrderService
	logger  *slog.Logger
}

func NewHandler(service OrderService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"POST /orders":              h.HandleCreate,
		"GET /orders":               h.HandleList,
		"GET /orders/available":     h.HandleListAvailable,
		"GET /orders/{id}":          h.HandleGet,
		"POST /orders/{id}/confirm": h.HandleConfirm,
		"POST /orders/{id}/reject":  h.HandleReject,
		"POST /orders/{id}/assign":  h.HandleAssign,
		"POST /orders/{id}/accept":  h.HandleAccept,
		"POST /orders/{id}/pickup":  h.HandlePickup,
		"POST /orders/{id}/deliver": h.HandleDeliver,
		"POST /orders/{id}/cancel":  h.HandleCancel,
		"POST /orders/{id}/rating":  h.HandleRate,
		"GET /partners/me/earnings": h.HandleEarnings,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, identity.Middleware(telemetry.WithHTTPRoute(fn)))
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())

	var req PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Place(r.Context(), actor, req)
	if err != nil {
		h.fail(w, err, "failed to place order")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err, "failed to get order", "id", id)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())

	var statuses []domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.OrderStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}

	orders, err := h.service.List(r.Context(), actor, statuses)
	if err != nil {
		h.fail(w, err, "failed to list orders")
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListAvailable(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())

	orders, err := h.service.ListAvailable(r.Context(), actor)
	if err != nil {
		h.fail(w, err, "failed to list available orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "confirm", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Confirm(ctx, actor, id)
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.act(w, r, "reject", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Reject(ctx, actor, id, req.Reason)
	})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.act(w, r, "cancel", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Cancel(ctx, actor, id, req.Reason)
	})
}

type assignRequest struct {
	PartnerID string `json:"partner_id"`
}

type assignResponse struct {
	Assigned bool          `json:"assigned"`
	Order    *domain.Order `json:"order"`
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req assignRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	order, assigned, err := h.service.Assign(r.Context(), actor, id, strings.TrimSpace(req.PartnerID))
	if err != nil {
		h.fail(w, err, "failed to assign order", "id", id)
		return
	}

	status := http.StatusOK
	if !assigned {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, assignResponse{Assigned: assigned, Order: order})
}

func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "accept", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Accept(ctx, actor, id)
	})
}

func (h *Handler) HandlePickup(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "pickup", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Pickup(ctx, actor, id)
	})
}

func (h *Handler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "deliver", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Deliver(ctx, actor, id)
	})
}

func (h *Handler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var req RatingInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.act(w, r, "rate", func(ctx context.Context, actor identity.Identity, id string) (*domain.Order, error) {
		return h.service.Rate(ctx, actor, id, req)
	})
}

func (h *Handler) HandleEarnings(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())

	summary, err := h.service.Earnings(r.Context(), actor)
	if err != nil {
		h.fail(w, err, "failed to compute earnings", "partner_id", actor.ID)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, identity.Identity, string) (*domain.Order, error)) {
	actor, _ := identity.FromContext(r.Context())

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := fn(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err, "failed to "+action+" order", "id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type claimFailure struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string, attrs ...any) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, inventory.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrRaceLost):
		h.writeJSON(w, http.StatusConflict, claimFailure{Success: false, Reason: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyRated),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, inventory.ErrInsufficientStock):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, attrs...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
