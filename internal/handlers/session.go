// internal/handlers/session.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	errRateLimited = &room.Error{Code: "rate_limited", Message: "you are sending messages too fast"}
	errNotInRoom   = &room.Error{Code: "not_in_room", Message: "join a room first"}
	errInRoom      = &room.Error{Code: "already_in_room", Message: "leave your current room first"}
)

const codeBadRequest = "bad_request"

// HostTokens issues and checks host tokens. *auth.Issuer implements it.
type HostTokens interface {
	IssueHostToken(roomID int) (string, error)
	VerifyHostToken(token string, roomID int) error
}

// Limits throttles chatty inbound messages per connection.
type Limits struct {
	ChatRate  rate.Limit
	ChatBurst int
	// GuessRate applies to live pending-guess updates, which are dropped
	// silently when over the limit.
	GuessRate  rate.Limit
	GuessBurst int
}

// DefaultLimits are used when a zero Limits is configured.
var DefaultLimits = Limits{ChatRate: 1, ChatBurst: 5, GuessRate: 10, GuessBurst: 20}

// Session binds one connection to at most one room and turns its inbound
// messages into controller calls. It is driven by a single read pump, so it
// needs no locking of its own.
type Session struct {
	conn   *Connection
	ctrl   *room.Controller
	hub    *Hub
	tokens HostTokens
	log    logrus.FieldLogger

	roomID int
	name   string

	chat  *rate.Limiter
	guess *rate.Limiter
}

// NewSession returns a session for conn.
func NewSession(conn *Connection, ctrl *room.Controller, hub *Hub, tokens HostTokens, limits Limits, logger logrus.FieldLogger) *Session {
	if limits.ChatRate == 0 {
		limits = DefaultLimits
	}
	if limits.GuessRate == 0 {
		limits.GuessRate, limits.GuessBurst = DefaultLimits.GuessRate, DefaultLimits.GuessBurst
	}
	return &Session{
		conn:   conn,
		ctrl:   ctrl,
		hub:    hub,
		tokens: tokens,
		log:    logger.WithField("conn", conn.ID),
		chat:   rate.NewLimiter(limits.ChatRate, limits.ChatBurst),
		guess:  rate.NewLimiter(limits.GuessRate, limits.GuessBurst),
	}
}

// RoomID is the joined room, or 0.
func (s *Session) RoomID() int { return s.roomID }

// HandleFrame decodes and dispatches one inbound frame. Rejections are sent
// back to this connection only.
func (s *Session) HandleFrame(ctx context.Context, data []byte) {
	typ, msg, err := decodeMessage(data)
	if err != nil {
		s.log.WithError(err).Debug("rejected inbound frame")
		s.conn.Write(room.Event{Type: room.EventError, Payload: room.ErrorPayload{Code: codeBadRequest, Message: err.Error()}})
		return
	}
	if err := s.dispatch(ctx, msg); err != nil {
		log := s.log.WithFields(logrus.Fields{"type": typ, "room": s.roomID})
		if room.Code(err) == "internal" {
			log.WithError(err).Warn("action failed")
		} else {
			log.WithError(err).Debug("action rejected")
		}
		s.conn.Write(room.ErrorEvent(err))
	}
}

// dispatch runs one message. A panic in a handler is logged and reported as
// an internal error rather than killing the read pump.
func (s *Session) dispatch(ctx context.Context, msg any) (err error) {
	defer func() {
		if v := recover(); v != nil {
			s.log.WithFields(logrus.Fields{"panic": v, "stack": string(debug.Stack())}).Error("handler panicked")
			err = errors.New("internal error")
		}
	}()

	if join, ok := msg.(*JoinRoom); ok {
		return s.join(join)
	}
	if s.roomID == 0 {
		return errNotInRoom
	}
	id := s.conn.ID

	switch m := msg.(type) {
	case *LeaveRoom:
		return s.leave()
	case *SetReady:
		return s.ctrl.SetReady(s.roomID, id, m.Ready)
	case *RoundStart:
		return s.ctrl.RequestRoundStart(ctx, s.roomID, id)
	case *CastVote:
		return s.ctrl.CastVote(s.roomID, id, m.Index)
	case *ConfirmGuess:
		return s.ctrl.ConfirmGuess(s.roomID, id, m.Price)
	case *PendingGuess:
		if !s.guess.Allow() {
			return nil
		}
		return s.ctrl.UpdatePendingGuess(s.roomID, id, m.Price)
	case *UseSteal:
		return s.ctrl.UseSteal(s.roomID, id)
	case *UpdateSettings:
		return s.ctrl.UpdateSettings(s.roomID, id, m.Settings)
	case *NextRound:
		return s.ctrl.ClickNextRound(ctx, s.roomID, id, m.Clicked)
	case *ResetToLobby:
		return s.ctrl.ResetToLobby(s.roomID, id)
	case *ChatMessage:
		if !s.chat.Allow() {
			return errRateLimited
		}
		return s.ctrl.Chat(s.roomID, id, m.Text)
	default:
		return fmt.Errorf("unhandled message %T", msg)
	}
}

func (s *Session) join(m *JoinRoom) error {
	if s.roomID != 0 {
		return errInRoom
	}
	roomID := m.RoomID
	if roomID == 0 && m.Code != "" {
		r, ok := s.ctrl.Store().GetByCode(strings.ToUpper(strings.TrimSpace(m.Code)))
		if !ok {
			return room.ErrRoomNotFound
		}
		roomID = r.ID
	}

	isHost := false
	if m.IsHost {
		if err := s.tokens.VerifyHostToken(m.HostToken, roomID); err != nil {
			// still allowed to join; the first player in becomes host anyway
			s.log.WithError(err).WithField("room", roomID).Debug("host claim ignored")
		} else {
			isHost = true
		}
	}

	// subscribe first so the joiner sees its own join broadcasts
	s.hub.Subscribe(roomID, s.conn.ID)
	res, err := s.ctrl.Join(room.JoinRequest{
		RoomID:   roomID,
		PlayerID: s.conn.ID,
		Name:     m.PlayerName,
		Color:    m.Color,
		IsHost:   isHost,
		Rejoin:   m.Rejoin,
	})
	if err != nil {
		s.hub.Unsubscribe(roomID, s.conn.ID)
		return err
	}
	if res.PreviousID != uuid.Nil {
		s.hub.Unsubscribe(roomID, res.PreviousID)
	}
	s.roomID = roomID
	s.name = res.Player.Name
	s.log = s.log.WithFields(logrus.Fields{"room": roomID, "player": s.name})
	return nil
}

func (s *Session) leave() error {
	roomID := s.roomID
	s.roomID = 0
	s.hub.Unsubscribe(roomID, s.conn.ID)
	return s.ctrl.Leave(roomID, s.conn.ID)
}

// Close leaves the joined room, if any. Called once the connection is gone.
func (s *Session) Close() {
	if s.roomID == 0 {
		return
	}
	if err := s.leave(); err != nil && !errors.Is(err, room.ErrPlayerNotFound) && !errors.Is(err, room.ErrRoomNotFound) {
		s.log.WithError(err).Warn("leave on disconnect failed")
	}
}
