// Package client implements the companion signaling client: it joins a
// channel on the relay and negotiates one PeerConnection per remote member.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/channelkit/roomrelay/internal/signaling"
)

// ErrChannelFull is returned by Join when the relay rejects the join because
// the channel is at capacity.
var ErrChannelFull = errors.New("channel is full")

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

type Config struct {
	// ServerURL is the ws:// or wss:// URL of the relay's signaling endpoint.
	ServerURL string
	// Channel is the channel name to join.
	Channel string

	// API constructs PeerConnections. Defaults to NewAPI().
	API *webrtc.API

	ICEServers []webrtc.ICEServer

	// Tracks are added to every PeerConnection this client negotiates.
	Tracks []webrtc.TrackLocal

	// Renderer receives remote media. May be nil.
	Renderer TrackRenderer

	Logger *slog.Logger
}

type Client struct {
	cfg Config
	api *webrtc.API
	log *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	id     int
	peers  map[int]*peerSession
	closed bool

	joined chan struct{}
	full   chan struct{}
	done   chan struct{}

	err error
}

// Dial connects to the relay and starts the signaling exchange. The returned
// client joins the channel as soon as the relay's handshake arrives; use Join
// to wait for the outcome.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server url must not be empty")
	}
	if cfg.Channel == "" {
		return nil, errors.New("channel must not be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	api := cfg.API
	if api == nil {
		var err error
		api, err = NewAPI()
		if err != nil {
			return nil, fmt.Errorf("new webrtc api: %w", err)
		}
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{signaling.Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		api:    api,
		log:    cfg.Logger.With("channel", cfg.Channel),
		conn:   conn,
		peers:  map[int]*peerSession{},
		joined: make(chan struct{}),
		full:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)

	go c.readLoop()

	return c, nil
}

// Join waits for the relay to accept or reject the join sent in response to
// its handshake. Returns ErrChannelFull on a capacity rejection.
func (c *Client) Join(ctx context.Context) error {
	select {
	case <-c.joined:
		return nil
	case <-c.full:
		return ErrChannelFull
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return errors.New("connection closed before join completed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the member id assigned by the relay, or 0 before the welcome.
func (c *Client) ID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Done is closed when the signaling connection ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Leave tears down every peer session and closes the signaling connection.
func (c *Client) Leave() error {
	c.teardown(nil)
	return nil
}

func (c *Client) send(msg signaling.Message) {
	data, err := msg.Encode()
	if err != nil {
		c.log.Error("encode signaling message", "type", msg.Type, "err", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debug("write signaling message", "err", err)
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}

		msg, err := signaling.ParseMessage(data)
		if err != nil {
			c.log.Debug("dropping malformed message from relay", "err", err)
			continue
		}

		c.handle(msg)
	}
}

func (c *Client) handle(msg signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeHandshake:
		c.send(signaling.Message{
			Type:        signaling.MessageTypeJoin,
			ChannelName: c.cfg.Channel,
		})

	case signaling.MessageTypeWelcome:
		c.handleWelcome(msg)

	case signaling.MessageTypeMaxOccupancy:
		c.log.Info("join rejected, channel full")
		c.signalFull()

	case signaling.MessageTypeVideoOffer:
		c.handleVideoOffer(msg)

	case signaling.MessageTypeVideoAnswer:
		if p := c.peer(msg.SenderID); p != nil {
			if err := p.handleAnswer(msg.SDP); err != nil {
				c.log.Debug("dropping answer", "sender_id", msg.SenderID, "err", err)
			}
		}

	case signaling.MessageTypeICECandidate:
		if p := c.peer(msg.SenderID); p != nil {
			if err := p.addCandidate(msg.Candidate); err != nil {
				c.log.Debug("dropping ice candidate", "sender_id", msg.SenderID, "err", err)
			}
		}

	case signaling.MessageTypeClose:
		c.handlePeerDeparted(msg.ClientID)

	default:
		c.log.Debug("unexpected message from relay", "type", msg.Type)
	}
}

// handleWelcome records the assigned id and offers to every member that was
// already in the channel, concurrently.
func (c *Client) handleWelcome(msg signaling.Message) {
	c.mu.Lock()
	c.id = msg.ClientID
	c.mu.Unlock()

	c.log.Info("joined channel", "client_id", msg.ClientID, "members", len(msg.ClientIDs))

	var wg sync.WaitGroup
	for _, remoteID := range msg.ClientIDs {
		if remoteID == msg.ClientID {
			continue
		}

		p, err := c.addPeer(remoteID)
		if err != nil {
			c.log.Error("create peer session", "remote_id", remoteID, "err", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.sendOffer(); err != nil {
				c.log.Error("send offer", "remote_id", p.remoteID, "err", err)
			}
		}()
	}
	wg.Wait()

	// The join is only complete once every offer to the existing members has
	// been prepared locally.
	select {
	case <-c.joined:
	default:
		close(c.joined)
	}
}

func (c *Client) handleVideoOffer(msg signaling.Message) {
	p, err := c.addPeer(msg.SenderID)
	if err != nil {
		c.log.Error("create peer session for offer", "sender_id", msg.SenderID, "err", err)
		return
	}
	if err := p.handleOffer(msg.SDP); err != nil {
		c.log.Debug("dropping offer", "sender_id", msg.SenderID, "err", err)
	}
}

func (c *Client) handlePeerDeparted(remoteID int) {
	c.mu.Lock()
	p := c.peers[remoteID]
	delete(c.peers, remoteID)
	c.mu.Unlock()

	if p == nil {
		return
	}
	c.log.Info("peer departed", "remote_id", remoteID)
	p.close()
	if c.cfg.Renderer != nil {
		c.cfg.Renderer.RemoveTracks(remoteID)
	}
}

func (c *Client) addPeer(remoteID int) (*peerSession, error) {
	c.mu.Lock()
	if p, ok := c.peers[remoteID]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := newPeerSession(c, remoteID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.peers[remoteID]; ok {
		_ = p.pc.Close()
		return existing, nil
	}
	c.peers[remoteID] = p
	return p, nil
}

func (c *Client) peer(remoteID int) *peerSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[remoteID]
}

func (c *Client) signalFull() {
	select {
	case <-c.full:
	default:
		close(c.full)
	}
}

func (c *Client) teardown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.err = err
	}
	peers := c.peers
	c.peers = map[int]*peerSession{}
	c.mu.Unlock()

	for _, p := range peers {
		p.close()
	}

	c.writeMu.Lock()
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	_ = c.conn.Close()

	close(c.done)
}
