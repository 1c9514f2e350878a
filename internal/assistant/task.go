// Package assistant posts assistant replies into rooms through an
// at-least-once Redis task queue with a dead-letter log.
package assistant

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task asks for one assistant reply to a human message.
type Task struct {
	ID               string    `json:"id"`
	RoomID           int64     `json:"room_id"`
	TriggerMessageID int64     `json:"trigger_message_id"`
	Prompt           string    `json:"prompt"`
	Attempt          int       `json:"attempt"`
	LastError        string    `json:"last_error,omitempty"`
	EnqueuedAt       time.Time `json:"enqueued_at"`

	// raw is the queue member this task was claimed as.
	raw string
}

// NewTask creates a first-attempt task.
func NewTask(roomID, triggerMessageID int64, prompt string) *Task {
	return &Task{
		ID:               uuid.NewString(),
		RoomID:           roomID,
		TriggerMessageID: triggerMessageID,
		Prompt:           prompt,
		EnqueuedAt:       time.Now().UTC(),
	}
}

func (t *Task) encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTask(raw string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, err
	}
	t.raw = raw
	return &t, nil
}
