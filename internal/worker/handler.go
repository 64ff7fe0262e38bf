package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/freshcart/grocery-delivery/internal/domain"
)

type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle drops malformed payloads and returns email failures for redelivery.
func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("skipping malformed order event", "error", err)
		return nil
	}
	if event.OrderID == "" || event.CustomerID == "" {
		h.logger.Warn("skipping order event without ids", "event", event.Type)
		return nil
	}

	msg, ok := composeEmail(event)
	if !ok {
		h.logger.Debug("no notification for event", "order_id", event.OrderID, "event", event.Type, "status", event.Status)
		return nil
	}

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send notification email", "error", err, "order_id", event.OrderID, "status", event.Status)
		return fmt.Errorf("send %s email for order %s: %w", event.Status, event.OrderID, err)
	}

	h.logger.Info("customer notified", "order_id", event.OrderID, "status", event.Status)
	return nil
}

func composeEmail(event domain.OrderEvent) (emailMessage, bool) {
	switch event.Type {
	case domain.OrderEventPlaced, domain.OrderEventStatusUpdated:
	default:
		return emailMessage{}, false
	}

	ref := event.OrderNumber
	if ref == "" {
		ref = event.OrderID
	}
	msg := emailMessage{To: event.CustomerID + "@example.com"}

	switch event.Status {
	case domain.OrderStatusConfirmed:
		msg.Subject = "Order Confirmed: " + ref
		msg.Body = fmt.Sprintf("Your order %s has been confirmed. Total %s.", ref, formatAmount(event.FinalAmount))
	case domain.OrderStatusOutForDelivery:
		msg.Subject = "Out for Delivery: " + ref
		msg.Body = fmt.Sprintf("Your order %s has been picked up and is on its way.", ref)
	case domain.OrderStatusDelivered:
		msg.Subject = "Delivered: " + ref
		msg.Body = fmt.Sprintf("Your order %s has been delivered. Let us know how it went by rating the delivery.", ref)
	case domain.OrderStatusCancelled:
		msg.Subject = "Order Cancelled: " + ref
		msg.Body = fmt.Sprintf("Your order %s has been cancelled.", ref)
		if event.Reason != "" {
			msg.Body += " Reason: " + event.Reason + "."
		}
	default:
		return emailMessage{}, false
	}
	return msg, true
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("Rs %d.%02d", minor/100, minor%100)
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
