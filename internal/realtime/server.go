package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/freshcart/grocery-delivery/internal/domain"
	"github.com/freshcart/grocery-delivery/internal/identity"
)

type OrderService interface {
	Accept(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
	Get(ctx context.Context, actor identity.Identity, orderID string) (*domain.Order, error)
}

type LocationRecorder interface {
	Push(ctx context.Context, actor identity.Identity, orderID string, loc domain.Location) (*domain.DeliveryTracking, error)
}

const (
	defaultWriteTimeout = 5 * time.Second
	readLimit           = 8 << 10
)

type ServerOption func(*Server)

func WithLocationRate(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		s.pushRate = rate.Limit(perSecond)
		s.pushBurst = burst
	}
}

func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) { s.originPatterns = patterns }
}

type Server struct {
	hub     *Hub
	orders  OrderService
	tracker LocationRecorder
	logger  *slog.Logger

	pushRate       rate.Limit
	pushBurst      int
	originPatterns []string
	writeTimeout   time.Duration
}

func NewServer(hub *Hub, orders OrderService, tracker LocationRecorder, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:          hub,
		orders:       orders,
		tracker:      tracker,
		logger:       logger,
		pushRate:     rate.Limit(1),
		pushBurst:    5,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type session struct {
	actor      identity.Identity
	client     *Client
	registered bool
	limiter    *rate.Limiter
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromRequest(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"missing or invalid identity"}` + "\n"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "user_id", actor.ID)
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(readLimit)

	client, err := s.hub.Add(actor)
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.hub.Remove(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Info("client connected", "client_id", client.ID, "user_id", actor.ID, "role", actor.Role)

	go s.writeLoop(ctx, cancel, conn, client)

	sess := &session{
		actor:   actor,
		client:  client,
		limiter: rate.NewLimiter(s.pushRate, s.pushBurst),
	}
	s.readLoop(ctx, conn, sess)

	s.logger.Info("client disconnected", "client_id", client.ID, "user_id", actor.ID)
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *Client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-client.Replies():
			if !s.write(ctx, conn, client, payload) {
				return
			}
		case payload, ok := <-client.Send():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if !s.write(ctx, conn, client, payload) {
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, client *Client, payload []byte) bool {
	writeCtx, done := context.WithTimeout(ctx, s.writeTimeout)
	defer done()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		s.logger.Debug("websocket write failed", "client_id", client.ID, "error", err)
		return false
	}
	return true
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("websocket read ended", "client_id", sess.client.ID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.reply(ctx, sess, errorMessage("malformed message"))
			continue
		}
		s.dispatch(ctx, sess, env)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session, env Envelope) {
	switch env.Type {
	case TypeRegister:
		var req registerRequest
		if !s.decode(ctx, sess, env, &req) {
			return
		}
		s.handleRegister(ctx, sess, req)
	case TypeJoinOrder:
		var req orderRequest
		if !s.decode(ctx, sess, env, &req) {
			return
		}
		s.handleJoin(ctx, sess, req)
	case TypeLeaveOrder:
		var req orderRequest
		if !s.decode(ctx, sess, env, &req) {
			return
		}
		s.hub.Unsubscribe(sess.client, OrderTopic(req.OrderID))
	case TypeAcceptOrder:
		var req acceptRequest
		if !s.decode(ctx, sess, env, &req) {
			return
		}
		s.handleAccept(ctx, sess, req)
	case TypeLocationUpdate:
		var req locationRequest
		if !s.decode(ctx, sess, env, &req) {
			return
		}
		s.handleLocation(ctx, sess, req)
	default:
		s.reply(ctx, sess, errorMessage("unknown message type "+env.Type))
	}
}

func (s *Server) decode(ctx context.Context, sess *session, env Envelope, dst any) bool {
	if len(env.Data) == 0 {
		s.reply(ctx, sess, errorMessage(env.Type+": missing data"))
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.reply(ctx, sess, errorMessage(env.Type+": malformed data"))
		return false
	}
	return true
}

func (s *Server) handleRegister(ctx context.Context, sess *session, req registerRequest) {
	if req.UserID != sess.actor.ID {
		s.reply(ctx, sess, errorMessage("user id does not match the authenticated identity"))
		return
	}

	var topics []string
	switch {
	case sess.actor.Is(identity.RoleDeliveryPartner):
		topics = []string{TopicPartners, PartnerTopic(sess.actor.ID)}
	case sess.actor.Is(identity.RoleCustomer):
		topics = []string{CustomerTopic(sess.actor.ID)}
	case sess.actor.Staff():
		topics = []string{TopicManagers}
	}
	s.hub.Subscribe(sess.client, topics...)
	sess.registered = true

	s.reply(ctx, sess, Message{Type: TypeRegistered, Data: RegisteredPayload{
		UserID: sess.actor.ID,
		Role:   string(sess.actor.Role),
		Topics: append([]string{TopicBroadcast}, topics...),
	}})
}

func (s *Server) handleJoin(ctx context.Context, sess *session, req orderRequest) {
	order, err := s.orders.Get(ctx, sess.actor, req.OrderID)
	if err == nil && !canFollow(sess.actor, order) {
		err = fmt.Errorf("%w: only the customer, the assigned partner or staff can follow this order", domain.ErrForbidden)
	}
	if err != nil {
		s.reply(ctx, sess, errorMessage(s.describe(err, "join order")))
		return
	}
	s.hub.Subscribe(sess.client, OrderTopic(req.OrderID))
	s.reply(ctx, sess, Message{Type: TypeJoined, Data: JoinedPayload{OrderID: req.OrderID}})
}

func canFollow(actor identity.Identity, order *domain.Order) bool {
	switch {
	case actor.Staff():
		return true
	case actor.Is(identity.RoleCustomer):
		return order.CustomerID == actor.ID
	case actor.Is(identity.RoleDeliveryPartner):
		return order.AssignedTo(actor.ID)
	}
	return false
}

func (s *Server) handleAccept(ctx context.Context, sess *session, req acceptRequest) {
	result := AcceptResultPayload{OrderID: req.OrderID}

	switch {
	case !sess.registered:
		result.Reason = "register before accepting orders"
	case req.PartnerID != "" && req.PartnerID != sess.actor.ID:
		result.Reason = "partner id does not match the registered identity"
	default:
		if _, err := s.orders.Accept(ctx, sess.actor, req.OrderID); err != nil {
			result.Reason = s.describe(err, "accept order")
		} else {
			result.Success = true
		}
	}

	s.reply(ctx, sess, Message{Type: TypeAcceptResult, Data: result})
}

func (s *Server) handleLocation(ctx context.Context, sess *session, req locationRequest) {
	if req.Lat == nil || req.Lon == nil {
		s.reply(ctx, sess, errorMessage("location_update: lat and lon are required"))
		return
	}
	if !sess.limiter.Allow() {
		s.reply(ctx, sess, errorMessage("location updates are rate limited"))
		return
	}
	loc := domain.Location{Lat: *req.Lat, Lon: *req.Lon}
	if _, err := s.tracker.Push(ctx, sess.actor, req.OrderID, loc); err != nil {
		s.reply(ctx, sess, errorMessage(s.describe(err, "record location")))
	}
}

// describe masks unexpected errors.
func (s *Server) describe(err error, action string) string {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrRaceLost),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.As(err, &validation):
		return err.Error()
	}
	s.logger.Error("failed to "+action, "error", err)
	return "internal error"
}

func (s *Server) reply(ctx context.Context, sess *session, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.hub.SendTo(ctx, sess.client, msg); err != nil {
		s.logger.Debug("reply not delivered", "client_id", sess.client.ID, "type", msg.Type, "error", err)
	}
}
