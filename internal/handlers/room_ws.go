// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/pricecheck/internal/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

const (
	readLimit    = 8 << 10
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// roomWS handles GET /ws. A connection starts outside any room and enters one
// with join_room.
func (s *APIServer) roomWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the pricecheck subprotocol")
		return
	}
	c.SetReadLimit(readLimit)

	conn := NewConnection(s.Logger)
	s.Hub.Register(conn)
	session := NewSession(conn, s.Controller, s.Hub, s.Tokens, s.Limits, s.Logger)
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, conn.ID)

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		writePump(ctx, c, conn, s.Logger)
		// the close handshake ends the blocked Read in readPump
		if s.closing.Load() {
			c.Close(ServerShutdown, "server shutting down")
		} else {
			c.Close(websocket.StatusGoingAway, "write pump stopped")
		}
		cancel()
	}()

	err = readPump(ctx, c, session)

	cancel()
	session.Close()
	s.Hub.Unregister(conn.ID)
	conn.Close()
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, conn.ID, err)
	c.Close(websocket.StatusNormalClosure, "")
}

// readPump feeds inbound frames to the session until the socket closes. A
// completed close handshake returns nil.
func readPump(ctx context.Context, c *websocket.Conn, session *Session) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			session.log.WithField("frame", typ).Debug("ignoring non-text frame")
			continue
		}
		session.HandleFrame(ctx, data)
	}
}

// writePump drains conn.OutChan onto the socket and keeps it alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *Connection, logger logrus.FieldLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	log := logger.WithField("conn", conn.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.OutChan:
			data, err := json.Marshal(ev)
			if err != nil {
				log.WithError(err).WithField("type", ev.Type).Warn("failed to marshal outgoing event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.WithError(err).Debug("failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}
