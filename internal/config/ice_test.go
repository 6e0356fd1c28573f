package config

import "testing"

func TestParseICEServersJSON_SingleURLString(t *testing.T) {
	servers, err := ParseICEServersJSON(`[{"urls":"stun:stun.example.com:3478"}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 1 || len(servers[0].URLs) != 1 {
		t.Fatalf("servers=%v, want one server with one url", servers)
	}
}

func TestParseICEServersJSON_TURNRequiresCredentials(t *testing.T) {
	_, err := ParseICEServersJSON(`[{"urls":["turn:turn.example.com:3478"]}]`)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestParseICEServersJSON_TURNWithCredentials(t *testing.T) {
	servers, err := ParseICEServersJSON(`[{"urls":["turn:turn.example.com:3478"],"username":"u","credential":"p"}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if servers[0].Username != "u" {
		t.Fatalf("username=%q, want %q", servers[0].Username, "u")
	}
	cred, ok := servers[0].Credential.(string)
	if !ok || cred != "p" {
		t.Fatalf("credential=%v, want %q", servers[0].Credential, "p")
	}
}

func TestParseICEServersJSON_RejectsUnknownScheme(t *testing.T) {
	_, err := ParseICEServersJSON(`[{"urls":["https://example.com"]}]`)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestParseICEServersFromConvenienceEnv_Empty(t *testing.T) {
	servers, err := ParseICEServersFromConvenienceEnv("", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("servers=%v, want none", servers)
	}
}
