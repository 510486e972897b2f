package proto

import (
	"encoding/json"
	"testing"
)

func TestParseRoomSelection(t *testing.T) {
	tests := []struct {
		payload string
		room    string
		wantErr bool
	}{
		{payload: `{"room":"general"}`, room: "general"},
		{payload: `{"room":" general "}`, room: "general"},
		{payload: `{"room":""}`, wantErr: true},
		{payload: `{}`, wantErr: true},
		{payload: `{"room":42}`, wantErr: true},
		{payload: `general`, wantErr: true},
	}

	for _, tt := range tests {
		sel, err := ParseRoomSelection([]byte(tt.payload))
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got %+v", tt.payload, sel)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.payload, err)
		}
		if sel.Room != tt.room {
			t.Fatalf("%s: expected %q, got %q", tt.payload, tt.room, sel.Room)
		}
	}
}

func TestEmptyPollResponseIsList(t *testing.T) {
	data, err := json.Marshal(NewPollResponse(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"messages":[]}` {
		t.Fatalf("expected empty list, got %s", data)
	}
}
