// Package gateway is the transport boundary: it upgrades websocket
// connections, tracks room membership, and fans events out to rooms or
// single connections. Engines never touch a connection directly; they
// emit through the internal.Sender contract this hub implements.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/logger"
	"github.com/hyeonwoo/partyroom-backend/internal/utils"
)

// EventHandler receives every parsed inbound event plus the one
// disconnect notification fired per connection teardown.
type EventHandler interface {
	HandleEvent(connID string, event string, data json.RawMessage)
	HandleDisconnect(connID string)
}

type Hub struct {
	upgrader websocket.Upgrader
	handler  EventHandler

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

// SetHandler wires the event dispatcher. Must be called before serving.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

var log = logger.With("gateway")

// HandleWebSocket upgrades the HTTP request and starts the read/write
// pumps for the new connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{
		id:   utils.NewConnectionID(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	log.Info().Str("conn", c.id).Msg("connection established")

	go c.writePump()
	go c.readPump(h.handler)
}

// JoinRoom adds the connection to a named broadcast group. A connection
// belongs to at most one room; joining again moves it.
func (h *Hub) JoinRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if c.room != "" {
		h.leaveRoomLocked(c)
	}
	c.room = room
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*client)
		h.rooms[room] = members
	}
	members[connID] = c
}

func (h *Hub) leaveRoomLocked(c *client) {
	members, ok := h.rooms[c.room]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(h.rooms, c.room)
	}
	c.room = ""
}

// BroadcastToRoom delivers the event to every current member of room.
// Best effort: a member whose send buffer is full is dropped, never
// waited on.
func (h *Hub) BroadcastToRoom(room, event string, data any) {
	h.broadcast(room, "", event, data)
}

// BroadcastToRoomExcept is BroadcastToRoom minus one connection, used
// for sender-excluded relays like typing notifications.
func (h *Hub) BroadcastToRoomExcept(room, exceptConnID, event string, data any) {
	h.broadcast(room, exceptConnID, event, data)
}

func (h *Hub) broadcast(room, exceptConnID, event string, data any) {
	payload, err := json.Marshal(internal.Message[any]{Type: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for id, c := range h.rooms[room] {
		if id != exceptConnID {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(payload)
	}
}

// SendToConnection delivers the event to exactly one connection. Unknown
// ids are a silent no-op.
func (h *Hub) SendToConnection(connID, event string, data any) {
	payload, err := json.Marshal(internal.Message[any]{Type: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(payload)
	}
}

// Disconnect forcibly terminates a connection. The teardown notification
// still fires exactly once, via the read pump unwinding.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.close()
	}
}

// remove drops the client from the hub and its room. Called once per
// connection from the read pump teardown.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room != "" {
		h.leaveRoomLocked(c)
	}
	delete(h.clients, c.id)
}
