// internal/handlers/api_server.go
package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/jason-s-yu/pricecheck/internal/middleware"
	"github.com/jason-s-yu/pricecheck/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the only websocket subprotocol the room endpoint speaks.
const Subprotocol = "pricecheck"

// APIServer holds everything the HTTP and websocket handlers share.
type APIServer struct {
	Controller *room.Controller
	Hub        *Hub
	Tokens     HostTokens
	Logger     logrus.FieldLogger

	// OriginPatterns is passed to websocket.Accept. Empty means same-origin only.
	OriginPatterns []string
	// PublicURL is the externally visible base URL used in join links. When
	// empty it is derived from the request.
	PublicURL string
	Limits    Limits

	closing atomic.Bool
}

// NewAPIServer wires a server around ctrl and hub.
func NewAPIServer(ctrl *room.Controller, hub *Hub, tokens HostTokens, logger logrus.FieldLogger) *APIServer {
	return &APIServer{
		Controller: ctrl,
		Hub:        hub,
		Tokens:     tokens,
		Logger:     logger,
		Limits:     DefaultLimits,
	}
}

// Routes returns the full HTTP surface wrapped in request logging and panic
// recovery.
func (s *APIServer) Routes() http.Handler {
	router := httprouter.New()

	router.GET("/healthz", healthz)
	router.POST("/rooms", s.createRoom)
	router.GET("/rooms", s.listRooms)
	router.GET("/rooms/:code", s.getRoom)
	router.GET("/rooms/:code/qr", s.roomQR)
	router.GET("/ws", s.roomWS)

	var h http.Handler = router
	h = middleware.Recover(s.Logger)(h)
	h = middleware.LogMiddleware(s.Logger)(h)
	return h
}

func healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Shutdown disconnects every websocket client with ServerShutdown. New
// connections are still accepted until the HTTP server stops listening.
func (s *APIServer) Shutdown() {
	s.closing.Store(true)
	s.Hub.CloseAll()
}
