// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pricecheck/internal/room"
	"github.com/sirupsen/logrus"
)

// outBufferSize is the per-connection queue of events awaiting the write pump.
const outBufferSize = 64

// Connection is a single websocket client. Its id doubles as the player id
// in whichever room it joins.
type Connection struct {
	ID      uuid.UUID
	OutChan chan room.Event

	done      chan struct{}
	closeOnce sync.Once
	log       logrus.FieldLogger
}

// NewConnection returns a connection with a fresh id.
func NewConnection(logger logrus.FieldLogger) *Connection {
	id := uuid.New()
	return &Connection{
		ID:      id,
		OutChan: make(chan room.Event, outBufferSize),
		done:    make(chan struct{}),
		log:     logger.WithField("conn", id),
	}
}

// Write pushes an event onto the OutChan non-blockingly. Logs if dropped.
func (c *Connection) Write(ev room.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.OutChan <- ev:
	default:
		c.log.WithField("type", ev.Type).Warn("OutChan full, dropped event")
	}
}

// Close marks the connection finished. Later writes are discarded.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is finished.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Recorder receives a copy of every room-wide event.
type Recorder interface {
	Record(roomID int, eventType string, payload any)
}

// Hub routes controller events to connections. It implements room.Broadcaster.
type Hub struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*Connection
	rooms    map[int]map[uuid.UUID]*Connection
	recorder Recorder
}

// NewHub returns an empty hub. recorder may be nil.
func NewHub(recorder Recorder) *Hub {
	return &Hub{
		conns:    make(map[uuid.UUID]*Connection),
		rooms:    make(map[int]map[uuid.UUID]*Connection),
		recorder: recorder,
	}
}

// Register makes c addressable by Send.
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// Unregister drops c from the hub and every room subscription.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
	for roomID, subs := range h.rooms {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribe adds connection id to the room's broadcast set.
func (h *Hub) Subscribe(roomID int, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[uuid.UUID]*Connection)
		h.rooms[roomID] = subs
	}
	subs[id] = c
}

// Unsubscribe removes connection id from the room's broadcast set.
func (h *Hub) Unsubscribe(roomID int, id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribers returns how many connections listen to roomID.
func (h *Hub) Subscribers(roomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Publish sends ev to every subscriber of roomID.
func (h *Hub) Publish(roomID int, ev room.Event) {
	if h.recorder != nil {
		h.recorder.Record(roomID, string(ev.Type), ev.Payload)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		c.Write(ev)
	}
}

// Send delivers ev to one connection.
func (h *Hub) Send(id uuid.UUID, ev room.Event) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if ok {
		c.Write(ev)
	}
}

// CloseAll finishes every registered connection, which ends their pumps.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.Close()
	}
}
