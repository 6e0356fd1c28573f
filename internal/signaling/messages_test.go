package signaling

import (
	"strings"
	"testing"
)

func TestParseMessage_Valid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want MessageType
	}{
		{"handshake", `{"type":"handshake"}`, MessageTypeHandshake},
		{"join", `{"type":"join","channelName":"cozy-otter-lantern"}`, MessageTypeJoin},
		{"welcome", `{"type":"welcome","clientId":2,"clientIds":[1,2]}`, MessageTypeWelcome},
		{"max occupancy", `{"type":"max-occupancy"}`, MessageTypeMaxOccupancy},
		{"offer", `{"type":"video-offer","sdp":{"type":"offer","sdp":"v=0"},"senderId":2,"recipientId":1}`, MessageTypeVideoOffer},
		{"answer", `{"type":"video-answer","sdp":{"type":"answer","sdp":"v=0"},"senderId":1,"recipientId":2}`, MessageTypeVideoAnswer},
		{"candidate", `{"type":"new-ice-candidate","candidate":{"candidate":"candidate:1"},"senderId":1,"recipientId":2}`, MessageTypeICECandidate},
		{"null candidate", `{"type":"new-ice-candidate","candidate":null,"senderId":1,"recipientId":2}`, MessageTypeICECandidate},
		{"close", `{"type":"close","clientId":1}`, MessageTypeClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if msg.Type != tt.want {
				t.Fatalf("type=%q, want %q", msg.Type, tt.want)
			}
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `welcome to the relay`},
		{"unknown type", `{"type":"video-call"}`},
		{"missing type", `{"channelName":"r"}`},
		{"unknown field", `{"type":"join","channelName":"r","password":"hunter2"}`},
		{"trailing data", `{"type":"handshake"}{"type":"handshake"}`},
		{"join without channel", `{"type":"join"}`},
		{"join with sender", `{"type":"join","channelName":"r","senderId":1}`},
		{"handshake with fields", `{"type":"handshake","clientId":1}`},
		{"welcome without ids", `{"type":"welcome","clientId":1}`},
		{"offer without sdp", `{"type":"video-offer","senderId":1,"recipientId":2}`},
		{"offer with null sdp", `{"type":"video-offer","sdp":null,"senderId":1,"recipientId":2}`},
		{"offer without recipient", `{"type":"video-offer","sdp":{"type":"offer","sdp":"v=0"},"senderId":1}`},
		{"offer with candidate", `{"type":"video-offer","sdp":{"type":"offer","sdp":"v=0"},"candidate":{},"senderId":1,"recipientId":2}`},
		{"candidate without key", `{"type":"new-ice-candidate","senderId":1,"recipientId":2}`},
		{"candidate without recipient", `{"type":"new-ice-candidate","candidate":null,"senderId":1}`},
		{"close without id", `{"type":"close"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.data)); err == nil {
				t.Fatalf("ParseMessage accepted %s", tt.data)
			}
		})
	}
}

func TestMessage_NullCandidate(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"new-ice-candidate","candidate":null,"senderId":1,"recipientId":2}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if !msg.HasCandidate() {
		t.Fatalf("null candidate should count as present")
	}
	if !msg.NullCandidate() {
		t.Fatalf("expected NullCandidate")
	}

	msg, err = ParseMessage([]byte(`{"type":"new-ice-candidate","candidate":{"candidate":"candidate:1"},"senderId":1,"recipientId":2}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.NullCandidate() {
		t.Fatalf("real candidate misreported as null")
	}
}

func TestMessage_EncodeRoundTrip(t *testing.T) {
	data, err := Message{Type: MessageTypeWelcome, ClientID: 3, ClientIDs: []int{1, 2, 3}}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage(%s): %v", data, err)
	}
	if msg.ClientID != 3 || len(msg.ClientIDs) != 3 {
		t.Fatalf("round trip mangled welcome: %+v", msg)
	}

	// The null candidate marker must survive encoding with the key present.
	data, err = Message{Type: MessageTypeICECandidate, Candidate: []byte("null"), SenderID: 1, RecipientID: 2}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"candidate":null`) {
		t.Fatalf("encoded candidate lost null marker: %s", data)
	}
}
