package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/channelkit/roomrelay/internal/signaling"
)

// TrackRenderer receives remote media as peers connect and disconnect.
type TrackRenderer interface {
	RenderTrack(remoteID int, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	RemoveTracks(remoteID int)
}

type peerState int

const (
	peerStateIdle peerState = iota
	peerStateOffering
	peerStateAnswering
	peerStateConnected
	peerStateClosed
)

func (s peerState) String() string {
	switch s {
	case peerStateIdle:
		return "idle"
	case peerStateOffering:
		return "offering"
	case peerStateAnswering:
		return "answering"
	case peerStateConnected:
		return "connected"
	case peerStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peerSession is the lifecycle of a single remote member: one PeerConnection,
// driven by the forwarded offer/answer/candidate messages addressed to it.
type peerSession struct {
	client   *Client
	remoteID int
	log      *slog.Logger

	mu    sync.Mutex
	state peerState
	pc    *webrtc.PeerConnection
	// Candidates received before the remote description is set are held back
	// and applied once it lands.
	pending []webrtc.ICECandidateInit
}

func newPeerSession(c *Client, remoteID int) (*peerSession, error) {
	p := &peerSession{
		client:   c,
		remoteID: remoteID,
		log:      c.log.With("remote_id", remoteID),
	}

	pc, err := c.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: c.cfg.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p.pc = pc

	for _, track := range c.cfg.Tracks {
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	}

	// Trickle ICE: every gathered candidate is sent immediately, and the
	// end-of-gathering nil candidate goes out as a null payload.
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		payload := json.RawMessage("null")
		if cand != nil {
			data, err := json.Marshal(cand.ToJSON())
			if err != nil {
				p.log.Error("marshal ice candidate", "err", err)
				return
			}
			payload = data
		}
		c.send(signaling.Message{
			Type:        signaling.MessageTypeICECandidate,
			Candidate:   payload,
			SenderID:    c.ID(),
			RecipientID: remoteID,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if c.cfg.Renderer != nil {
			c.cfg.Renderer.RenderTrack(remoteID, track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", "state", state.String())
	})

	return p, nil
}

// sendOffer drives the offering side: create and install a local offer, then
// hand it to the relay addressed at the remote member.
func (p *peerSession) sendOffer() (err error) {
	p.mu.Lock()
	if p.state != peerStateIdle {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("cannot offer in state %s", state)
	}
	p.state = peerStateOffering
	p.mu.Unlock()
	defer func() {
		if err != nil {
			p.revert(peerStateOffering)
		}
	}()

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	sdp, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}

	p.client.send(signaling.Message{
		Type:        signaling.MessageTypeVideoOffer,
		SDP:         sdp,
		SenderID:    p.client.ID(),
		RecipientID: p.remoteID,
	})
	return nil
}

// handleOffer drives the answering side.
func (p *peerSession) handleOffer(raw json.RawMessage) (err error) {
	p.mu.Lock()
	if p.state != peerStateIdle {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("unexpected offer in state %s", state)
	}
	p.state = peerStateAnswering
	p.mu.Unlock()
	defer func() {
		if err != nil {
			p.revert(peerStateAnswering)
		}
	}()

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	p.flushPendingCandidates()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	sdp, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}

	p.client.send(signaling.Message{
		Type:        signaling.MessageTypeVideoAnswer,
		SDP:         sdp,
		SenderID:    p.client.ID(),
		RecipientID: p.remoteID,
	})

	p.mu.Lock()
	if p.state == peerStateAnswering {
		p.state = peerStateConnected
	}
	p.mu.Unlock()
	return nil
}

// handleAnswer completes the offering side. Answers in any other state are
// protocol violations and leave the session untouched.
func (p *peerSession) handleAnswer(raw json.RawMessage) error {
	p.mu.Lock()
	if p.state != peerStateOffering {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("unexpected answer in state %s", state)
	}
	p.mu.Unlock()

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	p.flushPendingCandidates()

	p.mu.Lock()
	if p.state == peerStateOffering {
		p.state = peerStateConnected
	}
	p.mu.Unlock()
	return nil
}

// revert returns the session to idle after a failed negotiation step, so a
// retried offer is not rejected by the state check. The state may have moved
// on concurrently (a departure closing the session), in which case it is left
// alone.
func (p *peerSession) revert(from peerState) {
	p.mu.Lock()
	if p.state == from {
		p.state = peerStateIdle
	}
	p.mu.Unlock()
}

// addCandidate applies a trickled remote candidate. A null payload marks the
// end of the remote's gathering and is a no-op.
func (p *peerSession) addCandidate(raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("decode ice candidate: %w", err)
	}

	p.mu.Lock()
	if p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, candidate)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (p *peerSession) flushPendingCandidates() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, candidate := range pending {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			p.log.Debug("apply held-back ice candidate", "err", err)
		}
	}
}

func (p *peerSession) close() {
	p.mu.Lock()
	if p.state == peerStateClosed {
		p.mu.Unlock()
		return
	}
	p.state = peerStateClosed
	p.mu.Unlock()

	_ = p.pc.Close()
}
