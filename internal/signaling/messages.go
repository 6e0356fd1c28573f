package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type MessageType string

const (
	MessageTypeHandshake    MessageType = "handshake"
	MessageTypeJoin         MessageType = "join"
	MessageTypeWelcome      MessageType = "welcome"
	MessageTypeMaxOccupancy MessageType = "max-occupancy"
	MessageTypeVideoOffer   MessageType = "video-offer"
	MessageTypeVideoAnswer  MessageType = "video-answer"
	MessageTypeICECandidate MessageType = "new-ice-candidate"
	MessageTypeClose        MessageType = "close"
)

// Message is the discriminated envelope for every frame on the signaling
// socket, in both directions. Which fields are required depends on Type; see
// validate.
//
// SDP and Candidate payloads are kept as raw JSON: the relay forwards them
// verbatim and never needs to understand their contents. Candidate is
// nullable on the wire (a JSON null marks end-of-candidates), so absence and
// null are distinguished by checking len(Candidate).
type Message struct {
	Type MessageType `json:"type"`

	// join
	ChannelName string `json:"channelName,omitempty"`

	// welcome (assigned id + membership snapshot) and close (departed id).
	ClientID  int   `json:"clientId,omitempty"`
	ClientIDs []int `json:"clientIds,omitempty"`

	// video-offer, video-answer, new-ice-candidate.
	SDP         json.RawMessage `json:"sdp,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	SenderID    int             `json:"senderId,omitempty"`
	RecipientID int             `json:"recipientId,omitempty"`
}

// ParseMessage decodes and validates one signaling frame. Unknown fields and
// trailing data are rejected.
func ParseMessage(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Encode marshals the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// HasCandidate reports whether the candidate key was present on the wire,
// including as an explicit null.
func (m Message) HasCandidate() bool {
	return len(m.Candidate) > 0
}

// NullCandidate reports whether the candidate payload is the JSON null that
// marks end-of-candidates.
func (m Message) NullCandidate() bool {
	return bytes.Equal(bytes.TrimSpace(m.Candidate), []byte("null"))
}

// IsForward reports whether the message is forwarded point-to-point by
// recipient id rather than handled by the relay itself.
func (m Message) IsForward() bool {
	switch m.Type {
	case MessageTypeVideoOffer, MessageTypeVideoAnswer, MessageTypeICECandidate:
		return true
	}
	return false
}

func (m Message) validate() error {
	switch m.Type {
	case MessageTypeHandshake, MessageTypeMaxOccupancy:
		if m.ChannelName != "" || m.ClientID != 0 || m.ClientIDs != nil ||
			m.SDP != nil || m.Candidate != nil || m.SenderID != 0 || m.RecipientID != 0 {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case MessageTypeJoin:
		if m.ChannelName == "" {
			return fmt.Errorf("join message missing channelName")
		}
		if m.ClientID != 0 || m.ClientIDs != nil || m.SDP != nil ||
			m.Candidate != nil || m.SenderID != 0 || m.RecipientID != 0 {
			return fmt.Errorf("join message has unexpected fields")
		}
	case MessageTypeWelcome:
		if m.ClientID < 1 {
			return fmt.Errorf("welcome message missing clientId")
		}
		if len(m.ClientIDs) == 0 {
			return fmt.Errorf("welcome message missing clientIds")
		}
		if m.ChannelName != "" || m.SDP != nil || m.Candidate != nil ||
			m.SenderID != 0 || m.RecipientID != 0 {
			return fmt.Errorf("welcome message has unexpected fields")
		}
	case MessageTypeVideoOffer, MessageTypeVideoAnswer:
		if len(m.SDP) == 0 || bytes.Equal(bytes.TrimSpace(m.SDP), []byte("null")) {
			return fmt.Errorf("%s message missing sdp", m.Type)
		}
		if m.SenderID < 1 || m.RecipientID < 1 {
			return fmt.Errorf("%s message missing senderId/recipientId", m.Type)
		}
		if m.ChannelName != "" || m.ClientID != 0 || m.ClientIDs != nil || m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
	case MessageTypeICECandidate:
		if !m.HasCandidate() {
			return fmt.Errorf("new-ice-candidate message missing candidate")
		}
		if m.SenderID < 1 || m.RecipientID < 1 {
			return fmt.Errorf("new-ice-candidate message missing senderId/recipientId")
		}
		if m.ChannelName != "" || m.ClientID != 0 || m.ClientIDs != nil || m.SDP != nil {
			return fmt.Errorf("new-ice-candidate message has unexpected fields")
		}
	case MessageTypeClose:
		if m.ClientID < 1 {
			return fmt.Errorf("close message missing clientId")
		}
		if m.ChannelName != "" || m.ClientIDs != nil || m.SDP != nil ||
			m.Candidate != nil || m.SenderID != 0 || m.RecipientID != 0 {
			return fmt.Errorf("close message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}
