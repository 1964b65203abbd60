package task

import (
	"encoding/json"
	"time"
)

// EventType names the kind of state transition an event records.
type EventType string

const (
	EventCreated       EventType = "CREATED"
	EventUpdated       EventType = "UPDATED"
	EventStatusChanged EventType = "STATUS_CHANGED"
	EventDeleted       EventType = "DELETED"
)

// Event is an immutable record of one committed mutation.
type Event struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	Type        EventType `json:"type"`
	Payload     string    `json:"payload"`
	TaskVersion int64     `json:"taskVersion"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SnapshotPayload serializes the full task as an event payload.
func SnapshotPayload(t *Task) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StatusChangePayload builds the STATUS_CHANGED payload.
func StatusChangePayload(oldStatus, newStatus Status) (string, error) {
	b, err := json.Marshal(struct {
		OldStatus Status `json:"oldStatus"`
		NewStatus Status `json:"newStatus"`
	}{oldStatus, newStatus})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
