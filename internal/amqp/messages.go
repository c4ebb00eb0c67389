package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finwise/internal/store"
)

// ChangeMessage is a lightweight notice that one device's data changed.
// Consumers reload the state they need from storage.
type ChangeMessage struct {
	DeviceID   string    `json:"deviceId"`
	Collection string    `json:"collection"`
	Operation  string    `json:"operation"`
	EntityID   string    `json:"entityId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewChangeMessage converts a store change into a message.
func NewChangeMessage(c store.Change) *ChangeMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{
		DeviceID:   c.DeviceID,
		Collection: c.Collection,
		Operation:  c.Operation,
		EntityID:   c.EntityID,
		Timestamp:  ts,
	}
}

// AffectsBudgets reports whether budget status may have changed.
func (m *ChangeMessage) AffectsBudgets() bool {
	switch m.Collection {
	case store.CollectionBudgetCategories, store.CollectionTransactions:
		return true
	}
	return false
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message. A message without a device id
// is rejected.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.DeviceID == "" {
		return nil, fmt.Errorf("change message without device id")
	}
	return &msg, nil
}
