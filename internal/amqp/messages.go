package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidMessage = errors.New("invalid snapshot sync message")

// SnapshotSyncMessage asks the worker to push a profile snapshot to the
// remote store. It carries only the profile and revision; the worker reads
// the snapshot itself from the local database.
type SnapshotSyncMessage struct {
	ProfileID string    `json:"profileId"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshotSyncMessage creates a new sync message for one revision
func NewSnapshotSyncMessage(profileID string, revision uint64) *SnapshotSyncMessage {
	return &SnapshotSyncMessage{
		ProfileID: profileID,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotSyncMessageFromJSON creates a message from JSON bytes
func SnapshotSyncMessageFromJSON(data []byte) (*SnapshotSyncMessage, error) {
	var msg SnapshotSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ProfileID == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
