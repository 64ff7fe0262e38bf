package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/identity"
	"github.com/freshcart/grocery-delivery/internal/telemetry"
)

type TrackingService interface {
	Push(ctx context.Context, actor identity.Identity, orderID string, loc domain.Location) (*domain.DeliveryTracking, error)
	Get(ctx context.Context, actor identity.Identity, orderID string) (*domain.DeliveryTracking, error)
}

type Handler struct {
	service TrackingService
	logger  *slog.Logger
}

func NewHandler(service TrackingService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /orders/{id}/tracking/location", identity.Middleware(telemetry.WithHTTPRoute(h.HandlePush)))
	mux.Handle("GET /orders/{id}/tracking", identity.Middleware(telemetry.WithHTTPRoute(h.HandleGet)))
}

type pushRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (p pushRequest) location() (domain.Location, error) {
	switch {
	case p.Lat == nil:
		return domain.Location{}, domain.NewValidationError("lat", "is required")
	case p.Lon == nil:
		return domain.Location{}, domain.NewValidationError("lon", "is required")
	}
	return domain.Location{Lat: *p.Lat, Lon: *p.Lon}, nil
}

func (h *Handler) HandlePush(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id := r.PathValue("id")

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc, err := req.location()
	if err != nil {
		h.fail(w, err, "invalid location", "order_id", id)
		return
	}

	t, err := h.service.Push(r.Context(), actor, id, loc)
	if err != nil {
		h.fail(w, err, "failed to record location", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id := r.PathValue("id")

	t, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, err, "failed to get tracking", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, t)
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg string, attrs ...any) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
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
