package tracking

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

func TestHandler_Push(t *testing.T) {
	svc, store := newTestService(t, orderMap{"o1": assignedOrder("o1", domain.OrderStatusOutForDelivery)}, nil)
	mux := http.NewServeMux()
	NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty object", `{}`, http.StatusBadRequest},
		{"missing lon", `{"lat": 18.52}`, http.StatusBadRequest},
		{"missing lat", `{"lon": 73.85}`, http.StatusBadRequest},
		{"malformed", `{"lat":`, http.StatusBadRequest},
		{"out of range", `{"lat": 91, "lon": 0}`, http.StatusBadRequest},
		{"equator and meridian", `{"lat": 0, "lon": 0}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/orders/o1/tracking/location", strings.NewReader(tt.body))
			req.Header.Set(identity.HeaderUserID, rider.ID)
			req.Header.Set(identity.HeaderUserRole, string(rider.Role))
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	stored, _ := store.Get(t.Context(), "o1")
	if stored == nil || len(stored.History) != 1 {
		t.Fatalf("expected only the valid push recorded, got %+v", stored)
	}
}

func TestHandler_PushMissingFieldMessage(t *testing.T) {
	svc, _ := newTestService(t, orderMap{"o1": assignedOrder("o1", domain.OrderStatusOutForDelivery)}, nil)
	mux := http.NewServeMux()
	NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/orders/o1/tracking/location", strings.NewReader(`{}`))
	req.Header.Set(identity.HeaderUserID, rider.ID)
	req.Header.Set(identity.HeaderUserRole, string(rider.Role))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "lat: is required" {
		t.Errorf("unexpected error %q", body["error"])
	}
}
