package models

import "fmt"

// Visibility controls whether a room shows up in the public room list.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Settings captures the host-configurable rules of a room.
type Settings struct {
	// MaxPlayers is the room capacity.
	MaxPlayers int `json:"maxPlayers"`

	// Rounds is how many rounds a game lasts.
	Rounds int `json:"rounds"`

	// Steals is the per-game steal allotment given to every player.
	Steals int `json:"steals"`

	// AnswerTime is the per-turn answer window in seconds.
	AnswerTime int `json:"answerTime"`

	// Threshold is the deviation percentage below which a guess counts as correct.
	Threshold float64 `json:"threshold"`
}

// DefaultSettings returns the settings a freshly created room starts with.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers: 8,
		Rounds:     5,
		Steals:     1,
		AnswerTime: 30,
		Threshold:  5,
	}
}

// Validate checks every field against its allowed range.
func (s Settings) Validate() error {
	switch {
	case s.MaxPlayers < 1 || s.MaxPlayers > 16:
		return fmt.Errorf("maxPlayers must be between 1 and 16, got %d", s.MaxPlayers)
	case s.Rounds < 1 || s.Rounds > 20:
		return fmt.Errorf("rounds must be between 1 and 20, got %d", s.Rounds)
	case s.Steals < 0 || s.Steals > 10:
		return fmt.Errorf("steals must be between 0 and 10, got %d", s.Steals)
	case s.AnswerTime < 5 || s.AnswerTime > 120:
		return fmt.Errorf("answerTime must be between 5 and 120 seconds, got %d", s.AnswerTime)
	case s.Threshold <= 0 || s.Threshold > 100:
		return fmt.Errorf("threshold must be in (0, 100], got %v", s.Threshold)
	}
	return nil
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	MaxPlayers *int     `json:"maxPlayers,omitempty"`
	Rounds     *int     `json:"rounds,omitempty"`
	Steals     *int     `json:"steals,omitempty"`
	AnswerTime *int     `json:"answerTime,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

// Apply returns s with every non-nil field of p copied over. It does not validate.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.MaxPlayers != nil {
		s.MaxPlayers = *p.MaxPlayers
	}
	if p.Rounds != nil {
		s.Rounds = *p.Rounds
	}
	if p.Steals != nil {
		s.Steals = *p.Steals
	}
	if p.AnswerTime != nil {
		s.AnswerTime = *p.AnswerTime
	}
	if p.Threshold != nil {
		s.Threshold = *p.Threshold
	}
	return s
}
