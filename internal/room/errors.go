package room

import "errors"

// Error is a rejection reported only to the connection that caused it. Code is
// stable and meant for clients; Message is human readable.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrRoomNotFound     = &Error{"room_not_found", "room does not exist"}
	ErrPlayerNotFound   = &Error{"player_not_found", "you are not in this room"}
	ErrAlreadyJoined    = &Error{"already_joined", "you already joined this room"}
	ErrRoomFull         = &Error{"room_full", "room is full"}
	ErrNameTaken        = &Error{"name_taken", "that name is already used in this room"}
	ErrInvalidName      = &Error{"invalid_name", "player name must be 1 to 24 characters"}
	ErrNotHost          = &Error{"not_host", "only the host can do that"}
	ErrNotAllReady      = &Error{"not_all_ready", "not all players are ready"}
	ErrRoundInProgress  = &Error{"round_in_progress", "a round is already starting or in progress"}
	ErrGameOver         = &Error{"game_over", "the game is over, reset to lobby first"}
	ErrGameInProgress   = &Error{"game_in_progress", "settings can only change in the lobby"}
	ErrWrongPhase       = &Error{"wrong_phase", "that action is not available right now"}
	ErrNotYourTurn      = &Error{"not_your_turn", "it is not your turn"}
	ErrInvalidGuess     = &Error{"invalid_guess", "guess must be a non-negative number"}
	ErrInvalidVote      = &Error{"invalid_vote", "no such candidate"}
	ErrNoStealsLeft     = &Error{"no_steals_left", "you have no steals left"}
	ErrStealAlreadyUsed = &Error{"steal_already_used", "a steal was already used this round"}
	ErrAlreadyOnTurn    = &Error{"already_on_turn", "you already hold the turn"}
	ErrNotQueued        = &Error{"not_queued", "player is not in the turn queue"}
	ErrNoCandidates     = &Error{"no_candidates", "no candidates available"}
	ErrInvalidSettings  = &Error{"invalid_settings", "invalid settings"}
	ErrEmptyMessage     = &Error{"empty_message", "message is empty"}
	ErrCodeExhausted    = &Error{"code_exhausted", "could not allocate a room code"}
)

// Code returns the client-facing code of err, or "internal" when err carries none.
func Code(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return "internal"
}
