// internal/handlers/messages.go
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/pricecheck/internal/models"
)

// Inbound message types.
const (
	MsgJoinRoom       = "join_room"
	MsgLeaveRoom      = "leave_room"
	MsgSetReady       = "set_ready"
	MsgRoundStart     = "request_round_start"
	MsgCastVote       = "cast_vote"
	MsgConfirmGuess   = "confirm_guess"
	MsgPendingGuess   = "update_pending_guess"
	MsgUseSteal       = "use_steal"
	MsgUpdateSettings = "update_room_settings"
	MsgNextRoundClick = "next_round_click"
	MsgNextRoundUndo  = "next_round_unclick"
	MsgResetToLobby   = "reset_to_lobby"
	MsgChat           = "chat_message"
)

type JoinRoom struct {
	RoomID     int    `json:"roomId"`
	Code       string `json:"code,omitempty"`
	PlayerName string `json:"playerName"`
	IsHost     bool   `json:"isHost"`
	HostToken  string `json:"hostToken,omitempty"`
	Color      string `json:"color,omitempty"`
	Rejoin     bool   `json:"rejoin,omitempty"`
}

type LeaveRoom struct {
	RoomID     int    `json:"roomId"`
	PlayerName string `json:"playerName,omitempty"`
}

type SetReady struct {
	Ready bool `json:"ready"`
}

type RoundStart struct{}

type CastVote struct {
	Index int `json:"index"`
}

type ConfirmGuess struct {
	Price float64 `json:"price"`
}

type PendingGuess struct {
	Price float64 `json:"price"`
}

type UseSteal struct{}

type UpdateSettings struct {
	Settings models.SettingsPatch `json:"settings"`
}

type NextRound struct {
	Clicked bool
}

type ResetToLobby struct{}

type ChatMessage struct {
	Text string `json:"text"`
}

// decodeMessage parses one inbound frame into its typed message.
func decodeMessage(data []byte) (string, any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("invalid json: %w", err)
	}

	var msg any
	switch env.Type {
	case MsgJoinRoom:
		msg = &JoinRoom{}
	case MsgLeaveRoom:
		msg = &LeaveRoom{}
	case MsgSetReady:
		msg = &SetReady{}
	case MsgRoundStart:
		return env.Type, &RoundStart{}, nil
	case MsgCastVote:
		msg = &CastVote{Index: -1}
	case MsgConfirmGuess:
		msg = &ConfirmGuess{Price: -1}
	case MsgPendingGuess:
		msg = &PendingGuess{Price: -1}
	case MsgUseSteal:
		return env.Type, &UseSteal{}, nil
	case MsgUpdateSettings:
		msg = &UpdateSettings{}
	case MsgNextRoundClick:
		return env.Type, &NextRound{Clicked: true}, nil
	case MsgNextRoundUndo:
		return env.Type, &NextRound{Clicked: false}, nil
	case MsgResetToLobby:
		return env.Type, &ResetToLobby{}, nil
	case MsgChat:
		msg = &ChatMessage{}
	case "":
		return "", nil, fmt.Errorf("missing message type")
	default:
		return env.Type, nil, fmt.Errorf("unknown message type: %s", env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return env.Type, nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}
