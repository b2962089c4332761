// Package room is the authoritative state machine of a price-guessing room:
// membership, voting, the turn queue, turn deadlines, steals and scoring.
//
// Every Room carries its own mutex. Controller methods hold it for the whole
// of an action, and timer callbacks re-acquire it, so no two handlers ever
// mutate the same room concurrently. Methods on *Room ending in Unsafe and
// all unexported helpers assume the lock is held.
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/models"
)

// Phase is the position of a room in its round cycle.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseStarting Phase = "round_starting"
	PhaseVoting   Phase = "voting"
	PhaseActive   Phase = "round_active"
	PhaseResolved Phase = "round_resolved"
	PhaseGameOver Phase = "game_over"
)

const (
	maxNameLen     = 24
	maxChatLen     = 300
	maxChatHistory = 200
)

type pendingGuess struct {
	PlayerID uuid.UUID
	Price    float64
}

// Room is one game session.
type Room struct {
	ID         int               `json:"id"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Visibility models.Visibility `json:"visibility"`
	Settings   models.Settings   `json:"settings"`
	CreatedAt  time.Time         `json:"createdAt"`

	Players []*models.Player     `json:"players"`
	Chat    []models.ChatMessage `json:"-"`
	History []models.RoundRecord `json:"history"`

	GameStarted  bool `json:"gameStarted"`
	CurrentRound int  `json:"currentRound"`
	RoundTurns   int  `json:"roundTurns"`
	StealUsed    bool `json:"stealUsed"`

	// Mu serialises every action on this room.
	Mu sync.Mutex `json:"-"`

	phase     Phase
	queue     TurnQueue
	vote      *VoteSession
	voteTimer timerSlot
	turnTimer timerSlot

	item      *models.Item
	pending   *pendingGuess
	holder    uuid.UUID
	stealTurn bool
	deadline  time.Time

	nextRound map[uuid.UUID]bool
	closed    bool
}

// NewRoom builds an empty room in the lobby phase.
func NewRoom(id int, code, name string, vis models.Visibility, settings models.Settings, now time.Time) *Room {
	return &Room{
		ID:         id,
		Code:       code,
		Name:       name,
		Visibility: vis,
		Settings:   settings,
		CreatedAt:  now,
		phase:      PhaseLobby,
		nextRound:  make(map[uuid.UUID]bool),
	}
}

// Summary is the listing view of a room.
type Summary struct {
	ID         int               `json:"id"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Visibility models.Visibility `json:"visibility"`
	Players    int               `json:"players"`
	Settings   models.Settings   `json:"settings"`
	Phase      Phase             `json:"phase"`
	Round      int               `json:"round"`
}

// Summary returns the listing view, taking the room lock.
func (r *Room) Summary() Summary {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.SummaryUnsafe()
}

// SummaryUnsafe returns the listing view. Assumes the lock is held.
func (r *Room) SummaryUnsafe() Summary {
	return Summary{
		ID:         r.ID,
		Code:       r.Code,
		Name:       r.Name,
		Visibility: r.Visibility,
		Players:    len(r.Players),
		Settings:   r.Settings,
		Phase:      r.phase,
		Round:      r.CurrentRound,
	}
}

// PhaseUnsafe returns the current phase. Assumes the lock is held.
func (r *Room) PhaseUnsafe() Phase { return r.phase }

// QueueUnsafe returns a copy of the turn order. Assumes the lock is held.
func (r *Room) QueueUnsafe() []uuid.UUID { return r.queue.IDs() }

// HolderUnsafe returns the player whose turn it is, or uuid.Nil.
func (r *Room) HolderUnsafe() uuid.UUID { return r.holder }

// TurnTimerArmedUnsafe reports whether a turn deadline is pending.
func (r *Room) TurnTimerArmedUnsafe() bool { return r.turnTimer.armed() }

func (r *Room) player(id uuid.UUID) *models.Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerByName(name string) *models.Player {
	for _, p := range r.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *Room) host() *models.Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

func (r *Room) removePlayer(id uuid.UUID) *models.Player {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return p
		}
	}
	return nil
}

func (r *Room) memberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Players))
	for i, p := range r.Players {
		ids[i] = p.ID
	}
	return ids
}

func (r *Room) allReady() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (r *Room) takenColors(except uuid.UUID) map[string]bool {
	taken := make(map[string]bool, len(r.Players))
	for _, p := range r.Players {
		if p.ID != except {
			taken[p.Color] = true
		}
	}
	return taken
}

func (r *Room) nextRoundReady() int {
	n := 0
	for _, p := range r.Players {
		if r.nextRound[p.ID] {
			n++
		}
	}
	return n
}

func (r *Room) playerList() PlayerListPayload {
	out := PlayerListPayload{Players: make([]models.Player, len(r.Players))}
	for i, p := range r.Players {
		out.Players[i] = *p
		if p.IsHost {
			out.HostID = p.ID
		}
	}
	return out
}

// standings lists players by points, highest first; ties keep join order.
func (r *Room) standings() []Standing {
	out := make([]Standing, len(r.Players))
	for i, p := range r.Players {
		out[i] = Standing{PlayerID: p.ID, Name: p.Name, Color: p.Color, Points: p.Points}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out
}
