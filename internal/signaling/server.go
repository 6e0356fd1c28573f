package signaling

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/channelkit/roomrelay/internal/metrics"
	"github.com/channelkit/roomrelay/internal/ratelimit"
	"github.com/channelkit/roomrelay/internal/rooms"
)

// Subprotocol is the WebSocket subprotocol spoken on the signaling socket.
const Subprotocol = "json"

const (
	defaultMaxMessageBytes      = 64 * 1024
	defaultMaxMessagesPerSecond = 50
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second
	defaultSendQueueSize        = 32
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	// Registry holds room membership and assigns member ids. Required.
	Registry *rooms.Registry

	// Metrics receives event counters. If nil, a private registry is used.
	Metrics *metrics.Metrics

	Logger *slog.Logger

	// Inbound signaling hardening. Zero values select conservative defaults.
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	IdleTimeout          time.Duration
	PingInterval         time.Duration

	// SendQueueSize bounds each connection's outbound queue; a full queue
	// drops forwarded frames rather than blocking the sender.
	SendQueueSize int
}

// Server is the relay dispatcher. It upgrades HTTP requests to signaling
// WebSockets and runs one session state machine per connection:
//
//	Connected (transport open, not yet joined) -> Joined -> Closed.
//
// The server never closes a transport in response to a message type; only
// hardening violations (rate limit, oversized frames) or the client side end
// a connection.
type Server struct {
	registry *rooms.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger

	maxMessageBytes      int64
	maxMessagesPerSecond int
	idleTimeout          time.Duration
	pingInterval         time.Duration
	sendQueueSize        int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	registry := cfg.Registry
	if registry == nil {
		registry = rooms.NewRegistry(0)
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry:             registry,
		metrics:              m,
		log:                  logger,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		sendQueueSize:        cfg.SendQueueSize,
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = defaultMaxMessageBytes
	}
	if s.maxMessagesPerSecond <= 0 {
		s.maxMessagesPerSecond = defaultMaxMessagesPerSecond
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = defaultIdleTimeout
	}
	if s.pingInterval <= 0 {
		s.pingInterval = defaultPingInterval
	}
	if s.sendQueueSize <= 0 {
		s.sendQueueSize = defaultSendQueueSize
	}

	s.upgrader = websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		// Origin checks belong to the outer httpserver layer; unit tests dial
		// the handler directly.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return s
}

// Registry exposes the session registry so callers can inspect membership.
func (s *Server) Registry() *rooms.Registry { return s.registry }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch := newMemberChannel(conn, s.sendQueueSize)
	go ch.writePump(s.pingInterval)

	sess := &session{
		srv:   s,
		conn:  conn,
		ch:    ch,
		state: stateConnected,
		limiter: ratelimit.NewMessageLimiter(ratelimit.RealClock{}, s.maxMessagesPerSecond),
	}
	sess.run()
}

type sessionState int

const (
	stateConnected sessionState = iota
	stateJoined
	stateClosed
)

// session carries the dispatcher's per-connection state machine explicitly
// instead of capturing mutable variables in handler closures. It is only
// touched from the connection's read loop; cross-connection effects happen
// through the registry and other channels' send queues.
type session struct {
	srv  *Server
	conn *websocket.Conn
	ch   *memberChannel

	state    sessionState
	room     string
	clientID int

	limiter *ratelimit.MessageLimiter
}

func (sess *session) run() {
	defer sess.teardown()

	s := sess.srv
	sess.conn.SetReadLimit(s.maxMessageBytes)
	_ = sess.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	// The client must not send anything before this; it marks the moment the
	// relay is ready to accept a join request.
	sess.send(Message{Type: MessageTypeHandshake})

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		if !sess.limiter.Allow() {
			s.metrics.Inc(metrics.RateLimited)
			sess.ch.close(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			sess.ch.close(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			// Undecodable frames are dropped; the connection stays open.
			s.metrics.Inc(metrics.MalformedMessage)
			s.log.Debug("dropping malformed signaling message", "err", err)
			continue
		}

		sess.handle(msg, data)
	}
}

func (sess *session) handle(msg Message, raw []byte) {
	s := sess.srv

	switch {
	case msg.Type == MessageTypeJoin:
		sess.handleJoin(msg)

	case msg.IsForward():
		if sess.state != stateJoined {
			s.metrics.Inc(metrics.ProtocolViolation)
			s.log.Debug("forward message before join", "type", msg.Type)
			return
		}
		sess.forward(msg, raw)

	default:
		// Server-to-client message types arriving from a client.
		s.metrics.Inc(metrics.ProtocolViolation)
		s.log.Debug("unexpected client message", "type", msg.Type, "room", sess.room, "client_id", sess.clientID)
	}
}

func (sess *session) handleJoin(msg Message) {
	s := sess.srv

	if sess.state == stateJoined {
		// Protocol violation: no state change, no response.
		s.metrics.Inc(metrics.ProtocolViolation)
		s.log.Debug("join while already joined", "room", sess.room, "client_id", sess.clientID)
		return
	}

	id, snapshot, err := s.registry.Join(msg.ChannelName, sess.ch)
	if errors.Is(err, rooms.ErrRoomFull) {
		// The transport stays open; the client decides whether to disconnect.
		s.metrics.Inc(metrics.JoinRejectedFull)
		s.log.Info("join rejected, room full", "room", msg.ChannelName)
		sess.send(Message{Type: MessageTypeMaxOccupancy})
		return
	}
	if err != nil {
		s.log.Error("registry join failed", "room", msg.ChannelName, "err", err)
		return
	}

	sess.room = msg.ChannelName
	sess.clientID = id
	sess.state = stateJoined

	s.metrics.Inc(metrics.Join)
	s.log.Info("member joined", "room", sess.room, "client_id", id, "members", len(snapshot))

	sess.send(Message{
		Type:      MessageTypeWelcome,
		ClientID:  id,
		ClientIDs: snapshot,
	})
}

// forward relays an offer/answer/candidate frame verbatim to the recipient's
// send queue. A missing recipient means the peer already departed and is a
// silent no-op; a full queue drops the frame without retry.
func (sess *session) forward(msg Message, raw []byte) {
	s := sess.srv

	target, ok := s.registry.Lookup(sess.room, msg.RecipientID)
	if !ok {
		s.metrics.Inc(metrics.ForwardDroppedUnknownRecipient)
		s.log.Debug("dropping forward to unknown recipient",
			"type", msg.Type, "room", sess.room, "sender_id", msg.SenderID, "recipient_id", msg.RecipientID)
		return
	}
	if !target.TrySend(raw) {
		s.metrics.Inc(metrics.ForwardDroppedBackpressure)
		s.log.Warn("dropping forward, recipient send queue full",
			"type", msg.Type, "room", sess.room, "recipient_id", msg.RecipientID)
	}
}

func (sess *session) teardown() {
	s := sess.srv

	if sess.state == stateJoined {
		if id, ok := s.registry.Leave(sess.room, sess.ch); ok {
			s.metrics.Inc(metrics.Departure)
			s.log.Info("member departed", "room", sess.room, "client_id", id)

			if data, err := (Message{Type: MessageTypeClose, ClientID: id}).Encode(); err == nil {
				for _, member := range s.registry.Remaining(sess.room) {
					member.TrySend(data)
				}
			}
		}
	}

	sess.state = stateClosed
	sess.ch.close(websocket.CloseNormalClosure, "")
}

func (sess *session) send(msg Message) {
	data, err := msg.Encode()
	if err != nil {
		sess.srv.log.Error("encode signaling message", "type", msg.Type, "err", err)
		return
	}
	if !sess.ch.TrySend(data) {
		sess.srv.log.Warn("send queue full, dropping server message", "type", msg.Type, "room", sess.room, "client_id", sess.clientID)
	}
}
