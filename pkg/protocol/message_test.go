package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "status message",
			msgType: TypeStatus,
			data:    map[string]int{"remaining": 3},
		},
		{
			name:    "nil data",
			msgType: TypeRow,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeRow,
			data:    func() {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage_WireFormat(t *testing.T) {
	raw := `{"event":"results_channel","data":{"objects":{"name":"Milk","mrp":"60"}}}`

	msg, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.Type != TypeResults {
		t.Errorf("Type = %q, want %q", msg.Type, TypeResults)
	}

	var data ResultsData
	if err := msg.ParseData(&data); err != nil {
		t.Fatalf("ParseData: %v", err)
	}

	var obj map[string]string
	if err := json.Unmarshal(data.Objects, &obj); err != nil {
		t.Fatalf("objects: %v", err)
	}
	if obj["name"] != "Milk" || obj["mrp"] != "60" {
		t.Errorf("objects = %v", obj)
	}
}

func TestParseMessage_Errors(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":{}}`, `[]`} {
		if _, err := ParseMessage([]byte(raw)); err == nil {
			t.Errorf("ParseMessage(%q) should fail", raw)
		}
	}
}

func TestResultsMessage(t *testing.T) {
	msg, err := NewMessage(TypeResults, ResultsData{Objects: json.RawMessage(`{"name":"Bread"}`)})
	if err != nil {
		t.Fatal(err)
	}

	b, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, `"event":"results_channel"`) {
		t.Errorf("missing event name: %s", s)
	}
	if !strings.Contains(s, `"objects":{"name":"Bread"}`) {
		t.Errorf("missing objects: %s", s)
	}
}

func TestParseData_Empty(t *testing.T) {
	msg := &Message{Type: TypeRow}
	var v map[string]any
	if err := msg.ParseData(&v); err != nil {
		t.Errorf("ParseData on empty data: %v", err)
	}
}
