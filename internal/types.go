package internal

import "time"

// GameType selects which engine owns a room.
type GameType string

const (
	GameChat          GameType = "chat"
	GameMafia         GameType = "mafia"
	GameLiar          GameType = "liar"
	GameTelestrations GameType = "telestrations"
)

// Identity is what the connection registry knows about a live connection.
// The connection id is transport-assigned and unique for the lifetime of
// the connection; everything else is self-declared at join time.
type Identity struct {
	ConnID      string   `json:"id"`
	DisplayName string   `json:"username"`
	RoomName    string   `json:"room"`
	GameType    GameType `json:"game_type"`
}

// Sender is the broadcast gateway contract every engine emits through.
// Delivery is fire and forget: no acknowledgement, no retry. Events sent
// to the same room from one handler execution arrive in emission order.
type Sender interface {
	BroadcastToRoom(room string, event string, data any)
	BroadcastToRoomExcept(room string, exceptConnID string, event string, data any)
	SendToConnection(connID string, event string, data any)
	Disconnect(connID string)
}

// Timestamp formats t the way the chat protocol expects (ISO-8601, UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
