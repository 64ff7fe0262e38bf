package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

type emailSink struct {
	mu     sync.Mutex
	status int
	sent   []emailMessage
}

func (s *emailSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/send" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var msg emailMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	s.sent = append(s.sent, msg)
	w.WriteHeader(http.StatusOK)
}

func (s *emailSink) messages() []emailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emailMessage(nil), s.sent...)
}

func newTestHandler(t *testing.T) (*NotificationHandler, *emailSink) {
	t.Helper()
	sink := &emailSink{}
	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotificationHandler(srv.URL, srv.Client(), logger), sink
}

func encodeEvent(t *testing.T, event domain.OrderEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func TestNotificationHandler_Handle(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	base := domain.OrderEvent{
		OrderID:     "o1",
		OrderNumber: "ORD-20240315-ABCD1234",
		CustomerID:  "cust-1",
		FinalAmount: 16500,
		Timestamp:   at,
	}

	tests := []struct {
		name        string
		eventType   domain.OrderEventType
		status      domain.OrderStatus
		reason      string
		wantSubject string
		wantBody    string
	}{
		{"placed and confirmed", domain.OrderEventPlaced, domain.OrderStatusConfirmed, "", "Order Confirmed: ORD-20240315-ABCD1234", "Rs 165.00"},
		{"placed but held", domain.OrderEventPlaced, domain.OrderStatusPlaced, "low stock", "", ""},
		{"manager confirmed", domain.OrderEventStatusUpdated, domain.OrderStatusConfirmed, "", "Order Confirmed", ""},
		{"preparing", domain.OrderEventStatusUpdated, domain.OrderStatusPreparing, "", "", ""},
		{"picked up", domain.OrderEventStatusUpdated, domain.OrderStatusOutForDelivery, "", "Out for Delivery", "on its way"},
		{"delivered", domain.OrderEventStatusUpdated, domain.OrderStatusDelivered, "", "Delivered", "rating"},
		{"cancelled with reason", domain.OrderEventStatusUpdated, domain.OrderStatusCancelled, "out of stock", "Order Cancelled", "Reason: out of stock."},
		{"assignment", domain.OrderEventAssigned, domain.OrderStatusPreparing, "", "", ""},
		{"rating", domain.OrderEventRated, domain.OrderStatusDelivered, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sink := newTestHandler(t)
			event := base
			event.Type = tt.eventType
			event.Status = tt.status
			event.Reason = tt.reason

			if err := h.Handle(context.Background(), encodeEvent(t, event)); err != nil {
				t.Fatalf("Handle: %v", err)
			}

			sent := sink.messages()
			if tt.wantSubject == "" {
				if len(sent) != 0 {
					t.Errorf("expected no email, got %+v", sent)
				}
				return
			}
			if len(sent) != 1 {
				t.Fatalf("expected one email, got %d", len(sent))
			}
			if sent[0].To != "cust-1@example.com" {
				t.Errorf("unexpected recipient %q", sent[0].To)
			}
			if !strings.Contains(sent[0].Subject, tt.wantSubject) {
				t.Errorf("expected subject containing %q, got %q", tt.wantSubject, sent[0].Subject)
			}
			if !strings.Contains(sent[0].Body, tt.wantBody) {
				t.Errorf("expected body containing %q, got %q", tt.wantBody, sent[0].Body)
			}
		})
	}
}

func TestNotificationHandler_SkipsBadEvents(t *testing.T) {
	h, sink := newTestHandler(t)

	for _, payload := range [][]byte{
		[]byte("{not json"),
		[]byte(`{"type":"order.status_updated","status":"DELIVERED"}`),
	} {
		if err := h.Handle(context.Background(), payload); err != nil {
			t.Errorf("expected bad event to be skipped, got %v", err)
		}
	}
	if n := len(sink.messages()); n != 0 {
		t.Errorf("expected no emails, got %d", n)
	}
}

func TestNotificationHandler_EmailFailure(t *testing.T) {
	h, sink := newTestHandler(t)
	sink.status = http.StatusServiceUnavailable

	event := domain.OrderEvent{
		Type:       domain.OrderEventStatusUpdated,
		OrderID:    "o1",
		CustomerID: "cust-1",
		Status:     domain.OrderStatusDelivered,
	}
	err := h.Handle(context.Background(), encodeEvent(t, event))
	if err == nil {
		t.Fatal("expected error when the email service fails")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status in error, got %v", err)
	}
}
