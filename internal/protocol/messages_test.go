package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	raw := []byte(`{"type":"client_message","session_id":"s1","text":"What's my favorite color?","use_memory":true}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.SessionID != "s1" {
		t.Fatalf("SessionID = %q, want %q", msg.SessionID, "s1")
	}
	if msg.Text != "What's my favorite color?" {
		t.Fatalf("Text = %q", msg.Text)
	}
	if !msg.UseMemory {
		t.Fatalf("UseMemory = false, want true")
	}
}

func TestParseClientMessageDefaultsUseMemoryOff(t *testing.T) {
	raw := []byte(`{"type":"client_message","session_id":"s1","text":"hello"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if msg.UseMemory {
		t.Fatalf("UseMemory = true, want false when omitted")
	}
}

func TestParseClientMessageRejectsIncomplete(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing session", `{"type":"client_message","text":"hello"}`},
		{"missing text", `{"type":"client_message","session_id":"s1"}`},
		{"empty text", `{"type":"client_message","session_id":"s1","text":""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("ParseClientMessage(%s) expected error", tc.raw)
			}
		})
	}
}

func TestParseClientMessageUnsupportedType(t *testing.T) {
	raw := []byte(`{"type":"assistant_text_delta","session_id":"s1","text":"x"}`)
	_, err := ParseClientMessage(raw)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("malformed JSON should error")
	}
}

func TestMemoryUpdateWireShape(t *testing.T) {
	raw, err := json.Marshal(MemoryUpdate{
		Type:      TypeMemoryUpdate,
		SessionID: "s1",
		TurnID:    "t1",
		Updated:   true,
		Path:      "direct",
		Reasoning: "explicit request",
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != "memory_update" {
		t.Fatalf("type = %v", decoded["type"])
	}
	if decoded["path"] != "direct" {
		t.Fatalf("path = %v", decoded["path"])
	}
	if decoded["updated"] != true {
		t.Fatalf("updated = %v", decoded["updated"])
	}
}
