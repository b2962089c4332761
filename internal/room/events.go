package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/scoring"
)

// EventType names an outbound message.
type EventType string

const (
	EventPlayerList        EventType = "room_player_list"
	EventSettings          EventType = "room_settings"
	EventSettingsUpdated   EventType = "room_settings_updated"
	EventRoomState         EventType = "room_state"
	EventTurnStarted       EventType = "turn_started"
	EventStealUsed         EventType = "steal_used"
	EventVotingStarted     EventType = "voting_started"
	EventVoteTally         EventType = "vote_tally_update"
	EventVotingResult      EventType = "voting_result"
	EventGuessConfirmed    EventType = "guess_confirmed"
	EventPendingGuess      EventType = "pending_guess_updated"
	EventRoundFinished     EventType = "round_finished"
	EventRoundUnavailable  EventType = "round_unavailable"
	EventGameFinished      EventType = "game_finished"
	EventLobbyReset        EventType = "lobby_reset"
	EventNextRoundProgress EventType = "next_round_progress"
	EventChatMessage       EventType = "chat_new_message"
	EventChatCleared       EventType = "chat_cleared"
	EventChatHistory       EventType = "chat_history"
	EventHostChanged       EventType = "host_status_changed"
	EventError             EventType = "error"
)

// Event is one outbound message. Payload is one of the *Payload types below.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Broadcaster delivers events to room members. Implementations must not block
// and must not call back into the Controller: they are invoked with the room
// lock held.
type Broadcaster interface {
	// Publish sends ev to every connection subscribed to roomID.
	Publish(roomID int, ev Event)
	// Send sends ev to a single player connection.
	Send(playerID uuid.UUID, ev Event)
}

type PlayerListPayload struct {
	Players []models.Player `json:"players"`
	HostID  uuid.UUID       `json:"hostId"`
}

type SettingsPayload struct {
	Settings models.Settings `json:"settings"`
}

type RoomStatePayload struct {
	RoomID     int                `json:"roomId"`
	Code       string             `json:"code"`
	Name       string             `json:"name"`
	Visibility models.Visibility  `json:"visibility"`
	Phase      Phase              `json:"phase"`
	Round      int                `json:"round"`
	Rounds     int                `json:"rounds"`
	YouID      uuid.UUID          `json:"youId"`
	Turn       *TurnPayload       `json:"turn,omitempty"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
	Tally      []int              `json:"tally,omitempty"`
}

type TurnPayload struct {
	PlayerID    uuid.UUID `json:"playerId"`
	Name        string    `json:"name"`
	Deadline    time.Time `json:"deadline"`
	AnswerTime  int       `json:"answerTime"`
	SecondsLeft int       `json:"secondsLeft"`
	StealUsed   bool      `json:"stealUsed"`
	StealTurn   bool      `json:"stealTurn"`
	Position    int       `json:"position"`
	Total       int       `json:"total"`
	Turn        int       `json:"turn"`
}

type StealPayload struct {
	StealerID     uuid.UUID `json:"stealerId"`
	Name          string    `json:"name"`
	StealsLeft    int       `json:"stealsLeft"`
	InterruptedID uuid.UUID `json:"interruptedId"`
}

type VotingStartedPayload struct {
	Round      int                `json:"round"`
	Candidates []models.Candidate `json:"candidates"`
	Deadline   time.Time          `json:"deadline"`
	Seconds    int                `json:"seconds"`
	Estimated  int                `json:"estimatedTotal"`
}

type VoteTallyPayload struct {
	Tally []int `json:"tally"`
	Voted int   `json:"voted"`
	Total int   `json:"total"`
}

type VotingResultPayload struct {
	WinningIndex int              `json:"winningIndex"`
	Tally        []int            `json:"tally"`
	Candidate    models.Candidate `json:"candidate"`
	TieBroken    bool             `json:"tieBroken"`
}

type GuessPayload struct {
	PlayerID  uuid.UUID `json:"playerId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Deviation float64   `json:"deviation"`
	TimedOut  bool      `json:"timedOut"`
}

type PendingGuessPayload struct {
	PlayerID uuid.UUID `json:"playerId"`
	Price    float64   `json:"price"`
}

type Standing struct {
	PlayerID uuid.UUID `json:"playerId"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Points   int       `json:"points"`
}

type RoundFinishedPayload struct {
	Round       int                 `json:"round"`
	WinnerID    uuid.UUID           `json:"winnerId"`
	Name        string              `json:"name"`
	Guess       float64             `json:"guess"`
	ActualPrice string              `json:"actualPrice"`
	Actual      float64             `json:"actual"`
	Deviation   float64             `json:"deviation"`
	Points      scoring.RoundPoints `json:"points"`
	TurnsPlayed int                 `json:"turnsPlayed"`
	Final       bool                `json:"final"`
	Item        models.ItemSnapshot `json:"item"`
	Standings   []Standing          `json:"standings"`
}

type RoundUnavailablePayload struct {
	Round  int    `json:"round"`
	Reason string `json:"reason"`
}

type GameFinishedPayload struct {
	Standings  []Standing           `json:"standings"`
	StealBonus map[uuid.UUID]int    `json:"stealBonus"`
	History    []models.RoundRecord `json:"history"`
}

type NextRoundProgressPayload struct {
	Ready int `json:"ready"`
	Total int `json:"total"`
}

type ChatHistoryPayload struct {
	Messages []models.ChatMessage `json:"messages"`
}

type HostPayload struct {
	HostID uuid.UUID `json:"hostId"`
	Name   string    `json:"name"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds the targeted rejection event for err.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Code: Code(err), Message: err.Error()}}
}
