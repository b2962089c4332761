package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    room.EventType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{Subprotocol}})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{t: t, conn: c}
}

func (c *wsClient) send(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, data))
}

// waitFor reads frames until one of type want arrives.
func (c *wsClient) waitFor(want room.EventType) frame {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.conn.Read(ctx)
		require.NoError(c.t, err, "waiting for %s", want)
		var f frame
		require.NoError(c.t, json.Unmarshal(data, &f))
		if f.Type == want {
			return f
		}
	}
}

func TestRoomWSJoinAndChat(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	rm, err := api.Controller.CreateRoom("ws", models.VisibilityPublic, models.DefaultSettings())
	require.NoError(t, err)

	ann := dial(t, srv)
	ann.send(map[string]any{"type": MsgJoinRoom, "roomId": rm.ID, "playerName": "ann"})
	var state room.RoomStatePayload
	require.NoError(t, json.Unmarshal(ann.waitFor(room.EventRoomState).Payload, &state))
	assert.Equal(t, rm.Code, state.Code)
	assert.Equal(t, room.PhaseLobby, state.Phase)

	bob := dial(t, srv)
	bob.send(map[string]any{"type": MsgJoinRoom, "code": rm.Code, "playerName": "bob"})
	bob.waitFor(room.EventRoomState)

	var list room.PlayerListPayload
	require.NoError(t, json.Unmarshal(ann.waitFor(room.EventPlayerList).Payload, &list))
	for len(list.Players) < 2 {
		require.NoError(t, json.Unmarshal(ann.waitFor(room.EventPlayerList).Payload, &list))
	}
	assert.Equal(t, "bob", list.Players[1].Name)

	bob.send(map[string]any{"type": MsgChat, "text": "hello"})
	var msg models.ChatMessage
	for msg.Text != "hello" {
		msg = models.ChatMessage{}
		require.NoError(t, json.Unmarshal(ann.waitFor(room.EventChatMessage).Payload, &msg))
	}
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "bob", msg.Name)
}

func TestRoomWSReportsErrorsToSenderOnly(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	c := dial(t, srv)
	c.send(map[string]any{"type": MsgCastVote, "index": 0})
	var e room.ErrorPayload
	require.NoError(t, json.Unmarshal(c.waitFor(room.EventError).Payload, &e))
	assert.Equal(t, "not_in_room", e.Code)

	c.send(map[string]any{"type": MsgJoinRoom, "roomId": 99, "playerName": "ann"})
	require.NoError(t, json.Unmarshal(c.waitFor(room.EventError).Payload, &e))
	assert.Equal(t, room.ErrRoomNotFound.Code, e.Code)
}

func TestRoomWSDisconnectLeavesRoom(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	rm, err := api.Controller.CreateRoom("ws", models.VisibilityPublic, models.DefaultSettings())
	require.NoError(t, err)
	c := dial(t, srv)
	c.send(map[string]any{"type": MsgJoinRoom, "roomId": rm.ID, "playerName": "ann"})
	c.waitFor(room.EventRoomState)

	require.NoError(t, c.conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool {
		_, ok := api.Controller.Store().Get(rm.ID)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRoomWSRejectsMissingSubprotocol(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))
}

func TestRoomWSShutdown(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	c := dial(t, srv)
	c.send(map[string]any{"type": MsgChat, "text": "x"})
	c.waitFor(room.EventError)

	api.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			assert.Equal(t, ServerShutdown, websocket.CloseStatus(err), strconv.Quote(err.Error()))
			return
		}
	}
}
