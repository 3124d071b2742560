package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotChangedMessage announces that the persisted snapshot was
// rewritten. Consumers reload the snapshot from storage; the message itself
// carries only what changed.
type SnapshotChangedMessage struct {
	Operation string    `json:"operation"`
	Category  string    `json:"category,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Version   uint64    `json:"version"`
	Records   int       `json:"records"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotChangedMessage stamps a message with the current time.
func NewSnapshotChangedMessage(operation, category, recordID string, version uint64, records int) *SnapshotChangedMessage {
	return &SnapshotChangedMessage{
		Operation: operation,
		Category:  category,
		RecordID:  recordID,
		Version:   version,
		Records:   records,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotChangedMessageFromJSON parses a message body.
func SnapshotChangedMessageFromJSON(data []byte) (*SnapshotChangedMessage, error) {
	var msg SnapshotChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Operation == "" {
		return nil, fmt.Errorf("message without operation")
	}
	return &msg, nil
}
