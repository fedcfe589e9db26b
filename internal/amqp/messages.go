package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// PublishExportMessage asks a worker to publish one journaled export.
// It carries only the journal id; the worker loads the grid from storage.
type PublishExportMessage struct {
	ID        int64     `json:"id"`
	Report    string    `json:"report,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublishExportMessage creates a message for the given journal entry.
func NewPublishExportMessage(id int64, report string) *PublishExportMessage {
	return &PublishExportMessage{
		ID:        id,
		Report:    report,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PublishExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PublishExportMessageFromJSON decodes a message body. A message without a
// positive id is rejected.
func PublishExportMessageFromJSON(data []byte) (*PublishExportMessage, error) {
	var msg PublishExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid export id %d", msg.ID)
	}
	return &msg, nil
}
