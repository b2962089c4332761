package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a single line of room chat. System lines have no sender.
type ChatMessage struct {
	ID       uuid.UUID `json:"id"`
	PlayerID uuid.UUID `json:"playerId"`
	Name     string    `json:"name,omitempty"`
	Color    string    `json:"color,omitempty"`
	Text     string    `json:"text"`
	System   bool      `json:"system"`
	SentAt   time.Time `json:"sentAt"`
}
