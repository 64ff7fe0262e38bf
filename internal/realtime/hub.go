// Package realtime fans order events out to connected clients over named
// topics and carries the partner claim protocol on the same connections.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/freshcart/grocery-delivery/internal/identity"
)

var ErrHubClosed = errors.New("realtime: hub closed")

type NotifyError struct {
	Event string
	Err   error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Event, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

const defaultSendBuffer = 32

// Client is one connection's mailbox. Replies is never closed.
type Client struct {
	ID      string
	actor   identity.Identity
	send    chan []byte
	replies chan []byte

	topics map[string]struct{}
}

func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) Replies() <-chan []byte {
	return c.replies
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	closed  bool

	sendBuffer int
	logger     *slog.Logger
	metrics    *hubMetrics
}

func NewHub(logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newHubMetrics()
	if err != nil {
		return nil, fmt.Errorf("realtime: create metrics: %w", err)
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[*Client]struct{}),
		sendBuffer: defaultSendBuffer,
		logger:     logger,
		metrics:    m,
	}, nil
}

func (h *Hub) Add(actor identity.Identity) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	c := &Client{
		ID:      uuid.New().String(),
		actor:   actor,
		send:    make(chan []byte, h.sendBuffer),
		replies: make(chan []byte, h.sendBuffer),
		topics:  make(map[string]struct{}),
	}
	h.clients[c] = struct{}{}
	h.subscribeLocked(c, TopicBroadcast)
	h.metrics.connections.Add(context.Background(), 1)
	return c, nil
}

func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.unsubscribeLocked(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.connections.Add(context.Background(), -1)
}

func (h *Hub) Subscribe(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, t := range topics {
		h.subscribeLocked(c, t)
	}
}

func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, topic)
}

func (h *Hub) subscribeLocked(c *Client, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribeLocked(c *Client, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.topics, topic)
}

// Publish skips clients whose buffer is full.
func (h *Hub) Publish(ctx context.Context, msg Message, topics ...string) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, &NotifyError{Event: msg.Type, Err: err}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, &NotifyError{Event: msg.Type, Err: ErrHubClosed}
	}

	seen := make(map[*Client]struct{})
	for _, topic := range topics {
		for c := range h.topics[topic] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			h.deliverLocked(ctx, c, msg.Type, payload)
		}
	}

	h.metrics.published(ctx, msg.Type, len(seen))
	return len(seen), nil
}

func (h *Hub) SendTo(ctx context.Context, c *Client, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return &NotifyError{Event: msg.Type, Err: err}
	}

	h.mu.RLock()
	closed := h.closed
	_, ok := h.clients[c]
	h.mu.RUnlock()
	if closed {
		return &NotifyError{Event: msg.Type, Err: ErrHubClosed}
	}
	if !ok {
		return &NotifyError{Event: msg.Type, Err: errors.New("client disconnected")}
	}

	select {
	case c.replies <- payload:
		return nil
	case <-ctx.Done():
		h.metrics.dropped(context.WithoutCancel(ctx), msg.Type)
		return &NotifyError{Event: msg.Type, Err: ctx.Err()}
	}
}

func (h *Hub) dropFollowers(orderID, keep string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic := OrderTopic(orderID)
	var n int
	for c := range h.topics[topic] {
		if c.actor.Is(identity.RoleDeliveryPartner) && c.actor.ID != keep {
			h.unsubscribeLocked(c, topic)
			n++
		}
	}
	return n
}

func (h *Hub) deliverLocked(ctx context.Context, c *Client, msgType string, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.metrics.dropped(ctx, msgType)
		h.logger.Warn("client send buffer full, message dropped", "client_id", c.ID, "type", msgType)
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		h.metrics.connections.Add(context.Background(), -1)
	}
	h.clients = make(map[*Client]struct{})
	h.topics = make(map[string]map[*Client]struct{})
}
