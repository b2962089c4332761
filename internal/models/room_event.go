package models

import "encoding/json"

// RoomEvent is one outbound room event as recorded in the event log and
// archived by the historian.
type RoomEvent struct {
	RoomID    int             `json:"room_id"`
	Seq       int64           `json:"seq"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // epoch millis
}
