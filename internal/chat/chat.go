// Package chat handles plain chat rooms: message relay, typing state,
// user lists, and the majority-vote moderation flow.
package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/logger"
	"github.com/hyeonwoo/partyroom-backend/internal/registry"
)

var log = logger.With("chat")

type Engine struct {
	registry *registry.Registry
	gw       internal.Sender

	mu        sync.Mutex
	kickVotes map[string]map[string]*kickVote // room -> target name
}

func NewEngine(reg *registry.Registry, gw internal.Sender) *Engine {
	return &Engine{
		registry:  reg,
		gw:        gw,
		kickVotes: make(map[string]map[string]*kickVote),
	}
}

// Inbound payloads.

type SendMessagePayload struct {
	Message  string `json:"message"`
	RoomName string `json:"roomName"`
	IsImage  bool   `json:"isImage"`
}

type TypingPayload struct {
	RoomName string `json:"roomName"`
	IsTyping bool   `json:"isTyping"`
}

// Outbound payloads.

type systemMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type chatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	IsImage   bool   `json:"isImage"`
}

type typingState struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// Join announces the newcomer to the rest of the room and refreshes the
// room's user list for everyone.
func (e *Engine) Join(id internal.Identity) {
	e.gw.BroadcastToRoomExcept(id.RoomName, id.ConnID, "userJoined", systemMessage{
		Username:  id.DisplayName,
		Message:   fmt.Sprintf("%s님이 입장하셨습니다.", id.DisplayName),
		Timestamp: internal.Timestamp(time.Now()),
	})
	e.broadcastUserList(id.RoomName)
	log.Info().Str("room", id.RoomName).Str("user", id.DisplayName).Msg("joined chat room")
}

// HandleDisconnect announces the departure and refreshes the user list.
// Open kick votes are left untouched; their thresholds re-read the live
// room size on the next ballot.
func (e *Engine) HandleDisconnect(id internal.Identity) {
	e.gw.BroadcastToRoomExcept(id.RoomName, id.ConnID, "userLeft", systemMessage{
		Username:  id.DisplayName,
		Message:   fmt.Sprintf("%s님이 퇴장하셨습니다.", id.DisplayName),
		Timestamp: internal.Timestamp(time.Now()),
	})
	e.broadcastUserList(id.RoomName)
}

// SendMessage relays a chat (or inline image) message room-wide. Unknown
// senders are skipped silently.
func (e *Engine) SendMessage(connID string, p SendMessagePayload) {
	id, ok := e.registry.Lookup(connID)
	if !ok {
		return
	}
	e.gw.BroadcastToRoom(p.RoomName, "newMessage", chatMessage{
		Username:  id.DisplayName,
		Message:   p.Message,
		Timestamp: internal.Timestamp(time.Now()),
		ID:        connID,
		IsImage:   p.IsImage,
	})
}

// Typing relays the sender's typing indicator to everyone else.
func (e *Engine) Typing(connID string, p TypingPayload) {
	id, ok := e.registry.Lookup(connID)
	if !ok {
		return
	}
	e.gw.BroadcastToRoomExcept(p.RoomName, connID, "userTyping", typingState{
		Username: id.DisplayName,
		IsTyping: p.IsTyping,
	})
}

func (e *Engine) broadcastUserList(room string) {
	members := e.registry.ListRoom(room)
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.DisplayName)
	}
	e.gw.BroadcastToRoom(room, "userList", names)
}
