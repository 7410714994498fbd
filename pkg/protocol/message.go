// Package protocol defines the JSON envelope carried on go-gridscan's
// websocket channels: the inbound analysis push channel and the outbound
// dashboard feeds.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType names the event stream a message belongs to.
type MessageType string

const (
	// Analysis backend → gridscan
	TypeResults MessageType = "results_channel" // One analysis record under "objects"

	// gridscan → dashboard viewers
	TypeStatus MessageType = "status" // Scheduler view state
	TypeRow    MessageType = "row"    // One appended result row
)

// Message is the wrapper for all websocket messages.
type Message struct {
	Type      MessageType     `json:"event"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing event")
	}
	return &msg, nil
}

// ResultsData is the payload of a results_channel message. Objects holds
// one analysis record, or an array of them.
type ResultsData struct {
	Objects json.RawMessage `json:"objects"`
}
