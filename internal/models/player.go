package models

import "github.com/google/uuid"

// Player is a participant bound to one websocket connection inside a room.
type Player struct {
	ID         uuid.UUID `json:"id"` // connection identity
	Name       string    `json:"name"`
	Points     int       `json:"points"`
	Ready      bool      `json:"ready"`
	IsHost     bool      `json:"isHost"`
	StealsLeft int       `json:"stealsLeft"`
	Color      string    `json:"color"`
}

// Palette lists the display color keys a client may prefer.
var Palette = []string{
	"red", "orange", "yellow", "lime", "green",
	"teal", "blue", "indigo", "purple", "pink",
}

// PickColor returns preferred when it is a palette key not present in taken,
// otherwise the first free palette key. When every key is taken the preferred
// (or first) key is reused.
func PickColor(preferred string, taken map[string]bool) string {
	for _, c := range Palette {
		if c == preferred && !taken[c] {
			return c
		}
	}
	for _, c := range Palette {
		if !taken[c] {
			return c
		}
	}
	for _, c := range Palette {
		if c == preferred {
			return c
		}
	}
	return Palette[0]
}
