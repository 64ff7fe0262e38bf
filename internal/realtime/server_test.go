package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

// claimOrders is a single-order stand-in for the order service that
// publishes through the hub the way the real one does.
type claimOrders struct {
	hub *Hub

	mu    sync.Mutex
	order domain.Order
}

func (c *claimOrders) Accept(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	c.mu.Lock()
	if orderID != c.order.ID {
		c.mu.Unlock()
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if c.order.AssignedPartnerID != nil {
		c.mu.Unlock()
		return nil, domain.ErrRaceLost
	}
	id := actor.ID
	c.order.AssignedPartnerID = &id
	c.order.Status = domain.OrderStatusPreparing
	o := c.order
	c.mu.Unlock()

	_ = c.hub.OrderAssigned(ctx, &o)
	return &o, nil
}

func (c *claimOrders) Get(_ context.Context, actor identity.Identity, orderID string) (*domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if orderID != c.order.ID {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if actor.Is(identity.RoleCustomer) && actor.ID != c.order.CustomerID {
		return nil, domain.ErrForbidden
	}
	o := c.order
	return &o, nil
}

type relayTracker struct {
	hub *Hub
}

func (r *relayTracker) Push(ctx context.Context, actor identity.Identity, orderID string, loc domain.Location) (*domain.DeliveryTracking, error) {
	t := &domain.DeliveryTracking{OrderID: orderID, PartnerID: actor.ID, CurrentLocation: loc, Status: domain.TrackingStatusInTransit}
	_ = r.hub.LocationUpdated(ctx, domain.LocationUpdate{OrderID: orderID, Location: loc, Status: t.Status})
	return t, nil
}

func newTestSocketServer(t *testing.T, opts ...ServerOption) (*httptest.Server, *Hub) {
	t.Helper()
	hub := newTestHub(t)
	orders := &claimOrders{hub: hub, order: domain.Order{ID: "o1", CustomerID: "cust-1", Status: domain.OrderStatusConfirmed}}
	srv := httptest.NewServer(NewServer(hub, orders, &relayTracker{hub: hub}, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, as identity.Identity) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(identity.HeaderUserID, as.ID)
	header.Set(identity.HeaderUserRole, string(as.Role))

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial as %s: %v", as.ID, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, Message{Type: msgType, Data: data}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// expect reads until a message of msgType arrives, skipping others.
func expect(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type == msgType {
			return env.Data
		}
	}
}

func locate(orderID string, lat, lon float64) locationRequest {
	return locationRequest{OrderID: orderID, Lat: &lat, Lon: &lon}
}

func register(t *testing.T, ctx context.Context, conn *websocket.Conn, as identity.Identity) {
	t.Helper()
	send(t, ctx, conn, TypeRegister, registerRequest{UserID: as.ID})
	expect(t, ctx, conn, TypeRegistered)
}

func TestServer_ClaimAndTracking(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, _ := newTestSocketServer(t)

	alice := identity.Identity{ID: "partner-1", Role: identity.RoleDeliveryPartner}
	bob := identity.Identity{ID: "partner-2", Role: identity.RoleDeliveryPartner}
	cust := identity.Identity{ID: "cust-1", Role: identity.RoleCustomer}

	aliceConn := dial(t, ctx, srv, alice)
	bobConn := dial(t, ctx, srv, bob)
	custConn := dial(t, ctx, srv, cust)

	register(t, ctx, aliceConn, alice)
	register(t, ctx, bobConn, bob)
	register(t, ctx, custConn, cust)

	send(t, ctx, custConn, TypeJoinOrder, orderRequest{OrderID: "o1"})
	expect(t, ctx, custConn, TypeJoined)

	send(t, ctx, aliceConn, TypeAcceptOrder, acceptRequest{OrderID: "o1", PartnerID: alice.ID})
	var won AcceptResultPayload
	if err := json.Unmarshal(expect(t, ctx, aliceConn, TypeAcceptResult), &won); err != nil {
		t.Fatalf("decode accept result: %v", err)
	}
	if !won.Success {
		t.Fatalf("expected first claim to win, got %+v", won)
	}

	var assigned OrderAssignedPayload
	if err := json.Unmarshal(expect(t, ctx, bobConn, TypeOrderAssigned), &assigned); err != nil {
		t.Fatalf("decode order assigned: %v", err)
	}
	if assigned.OrderID != "o1" || assigned.PartnerID != alice.ID {
		t.Errorf("unexpected assignment broadcast %+v", assigned)
	}

	send(t, ctx, bobConn, TypeAcceptOrder, acceptRequest{OrderID: "o1", PartnerID: bob.ID})
	var lost AcceptResultPayload
	if err := json.Unmarshal(expect(t, ctx, bobConn, TypeAcceptResult), &lost); err != nil {
		t.Fatalf("decode accept result: %v", err)
	}
	if lost.Success || lost.Reason != domain.ErrRaceLost.Error() {
		t.Errorf("expected race lost, got %+v", lost)
	}

	send(t, ctx, aliceConn, TypeLocationUpdate, locate("o1", 19.08, 72.88))
	var update domain.LocationUpdate
	if err := json.Unmarshal(expect(t, ctx, custConn, TypeLocationUpdate), &update); err != nil {
		t.Fatalf("decode location update: %v", err)
	}
	if update.OrderID != "o1" || update.Location.Lat != 19.08 {
		t.Errorf("unexpected location update %+v", update)
	}
}

func TestServer_Rejections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, _ := newTestSocketServer(t, WithLocationRate(0.001, 1))
	alice := identity.Identity{ID: "partner-1", Role: identity.RoleDeliveryPartner}

	t.Run("upgrade without identity", func(t *testing.T) {
		_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		if err == nil {
			t.Fatal("expected dial to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %v", resp)
		}
	})

	conn := dial(t, ctx, srv, alice)

	t.Run("accept before register", func(t *testing.T) {
		send(t, ctx, conn, TypeAcceptOrder, acceptRequest{OrderID: "o1"})
		var res AcceptResultPayload
		if err := json.Unmarshal(expect(t, ctx, conn, TypeAcceptResult), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Success {
			t.Error("expected unregistered accept to fail")
		}
	})

	t.Run("register as someone else", func(t *testing.T) {
		send(t, ctx, conn, TypeRegister, registerRequest{UserID: "partner-9"})
		expect(t, ctx, conn, TypeError)
	})

	t.Run("accept on behalf of another partner", func(t *testing.T) {
		register(t, ctx, conn, alice)
		send(t, ctx, conn, TypeAcceptOrder, acceptRequest{OrderID: "o1", PartnerID: "partner-2"})
		var res AcceptResultPayload
		if err := json.Unmarshal(expect(t, ctx, conn, TypeAcceptResult), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Success {
			t.Error("expected mismatched partner id to fail")
		}
	})

	t.Run("unknown message type", func(t *testing.T) {
		send(t, ctx, conn, "teleport", orderRequest{OrderID: "o1"})
		expect(t, ctx, conn, TypeError)
	})

	t.Run("location without coordinates", func(t *testing.T) {
		send(t, ctx, conn, TypeLocationUpdate, orderRequest{OrderID: "o1"})

		var payload ErrorPayload
		if err := json.Unmarshal(expect(t, ctx, conn, TypeError), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.Contains(payload.Message, "required") {
			t.Errorf("unexpected error %q", payload.Message)
		}
	})

	t.Run("location pushes are rate limited", func(t *testing.T) {
		send(t, ctx, conn, TypeLocationUpdate, locate("o1", 19, 72))
		send(t, ctx, conn, TypeLocationUpdate, locate("o1", 19, 72))

		var payload ErrorPayload
		if err := json.Unmarshal(expect(t, ctx, conn, TypeError), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.Contains(payload.Message, "rate limited") {
			t.Errorf("unexpected error %q", payload.Message)
		}
	})
}

func TestServer_JoinOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, hub := newTestSocketServer(t)

	alice := identity.Identity{ID: "partner-1", Role: identity.RoleDeliveryPartner}
	bob := identity.Identity{ID: "partner-2", Role: identity.RoleDeliveryPartner}
	other := identity.Identity{ID: "cust-2", Role: identity.RoleCustomer}
	manager := identity.Identity{ID: "mgr-1", Role: identity.RoleStoreManager}

	aliceConn := dial(t, ctx, srv, alice)
	bobConn := dial(t, ctx, srv, bob)
	otherConn := dial(t, ctx, srv, other)
	managerConn := dial(t, ctx, srv, manager)

	register(t, ctx, aliceConn, alice)
	register(t, ctx, bobConn, bob)

	joinFails := func(t *testing.T, conn *websocket.Conn) {
		t.Helper()
		send(t, ctx, conn, TypeJoinOrder, orderRequest{OrderID: "o1"})
		var payload ErrorPayload
		if err := json.Unmarshal(expect(t, ctx, conn, TypeError), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.Contains(payload.Message, domain.ErrForbidden.Error()) {
			t.Errorf("expected forbidden, got %q", payload.Message)
		}
	}

	t.Run("partner cannot follow an unclaimed order", func(t *testing.T) {
		joinFails(t, bobConn)
	})

	t.Run("another customer cannot follow", func(t *testing.T) {
		joinFails(t, otherConn)
	})

	t.Run("staff can follow", func(t *testing.T) {
		send(t, ctx, managerConn, TypeJoinOrder, orderRequest{OrderID: "o1"})
		expect(t, ctx, managerConn, TypeJoined)
	})

	send(t, ctx, aliceConn, TypeAcceptOrder, acceptRequest{OrderID: "o1"})
	var won AcceptResultPayload
	if err := json.Unmarshal(expect(t, ctx, aliceConn, TypeAcceptResult), &won); err != nil {
		t.Fatalf("decode accept result: %v", err)
	}
	if !won.Success {
		t.Fatalf("expected claim to win, got %+v", won)
	}

	t.Run("assigned partner can follow", func(t *testing.T) {
		send(t, ctx, aliceConn, TypeJoinOrder, orderRequest{OrderID: "o1"})
		expect(t, ctx, aliceConn, TypeJoined)
	})

	t.Run("losing partner still cannot follow", func(t *testing.T) {
		joinFails(t, bobConn)
	})

	if n := hub.Subscribers(OrderTopic("o1")); n != 2 {
		t.Errorf("expected manager and winner on the order topic, got %d", n)
	}
}

func TestServer_HubCloseDisconnectsClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, hub := newTestSocketServer(t)
	conn := dial(t, ctx, srv, identity.Identity{ID: "cust-1", Role: identity.RoleCustomer})
	register(t, ctx, conn, identity.Identity{ID: "cust-1", Role: identity.RoleCustomer})

	hub.Close()

	_, _, err := conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Errorf("expected going away close, got %v (%v)", status, err)
	}
}
