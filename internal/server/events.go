package server

import (
	"encoding/json"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/chat"
	"github.com/hyeonwoo/partyroom-backend/internal/utils"
)

type joinPayload struct {
	DisplayName string `json:"displayName"`
	RoomName    string `json:"roomName"`
	GameType    string `json:"gameType"`
}

type roomPayload struct {
	RoomName string `json:"roomName"`
}

type targetPayload struct {
	RoomName string `json:"roomName"`
	TargetID string `json:"targetId"`
}

type votePayload struct {
	RoomName string `json:"roomName"`
	TargetID string `json:"targetId"`
	VoterID  string `json:"voterId"`
}

type gameMessagePayload struct {
	RoomName string          `json:"roomName"`
	Message  json.RawMessage `json:"message"`
}

type textMessagePayload struct {
	RoomName string `json:"roomName"`
	Message  string `json:"message"`
}

type submitTurnPayload struct {
	RoomName string `json:"roomName"`
	Data     string `json:"data"`
}

// HandleEvent routes one inbound envelope to the owning engine. Payloads
// that do not parse are dropped, matching the silent no-op policy for
// malformed input.
func (s *Server) HandleEvent(connID, event string, data json.RawMessage) {
	switch event {
	case "join":
		s.handleJoin(connID, data)

	// Plain chat.
	case "sendMessage":
		var p chat.SendMessagePayload
		if decode(data, &p) {
			s.chat.SendMessage(connID, p)
		}
	case "typing":
		var p chat.TypingPayload
		if decode(data, &p) {
			s.chat.Typing(connID, p)
		}
	case "kickVoteRequest":
		var p chat.KickVoteRequestPayload
		if decode(data, &p) {
			s.chat.RequestKickVote(p)
		}
	case "kickVote":
		var p chat.KickVotePayload
		if decode(data, &p) {
			s.chat.CastKickVote(p)
		}
	case "kick":
		var p chat.KickPayload
		if decode(data, &p) {
			s.chat.Kick(p)
		}

	// Deduction game.
	case "mafia-game-start":
		var p roomPayload
		if decode(data, &p) {
			s.deduction.StartGame(p.RoomName)
		}
	case "mafia-vote-start":
		var p roomPayload
		if decode(data, &p) {
			s.deduction.BeginVote(p.RoomName)
		}
	case "mafia-vote":
		var p votePayload
		if decode(data, &p) {
			if p.VoterID == "" {
				p.VoterID = connID
			}
			s.deduction.CastVote(p.RoomName, p.VoterID, p.TargetID)
		}
	case "mafia-attack":
		var p targetPayload
		if decode(data, &p) {
			s.deduction.Attack(p.RoomName, p.TargetID)
		}
	case "mafia-heal":
		var p targetPayload
		if decode(data, &p) {
			s.deduction.Heal(p.RoomName, p.TargetID)
		}
	case "mafia-message":
		var p gameMessagePayload
		if decode(data, &p) {
			if id, ok := s.registry.Lookup(connID); ok && id.GameType == internal.GameMafia {
				s.deduction.Message(p.RoomName, p.Message)
			}
		}

	// Deception game.
	case "liar-game-start":
		var p roomPayload
		if decode(data, &p) {
			s.deception.StartGame(p.RoomName, connID)
		}
	case "liar-message":
		var p textMessagePayload
		if decode(data, &p) {
			if id, ok := s.registry.Lookup(connID); ok {
				s.deception.Message(p.RoomName, connID, id.DisplayName, p.Message)
			}
		}
	case "liar-vote":
		var p targetPayload
		if decode(data, &p) {
			s.deception.CastVote(p.RoomName, connID, p.TargetID)
		}
	case "liar-game-restart":
		var p roomPayload
		if decode(data, &p) {
			s.deception.Restart(p.RoomName, connID)
		}

	// Drawing relay.
	case "telestrations-game-start":
		var p roomPayload
		if decode(data, &p) {
			s.relay.StartGame(p.RoomName, connID)
		}
	case "telestrations-submit-turn":
		var p submitTurnPayload
		if decode(data, &p) {
			s.relay.SubmitTurn(p.RoomName, connID, p.Data)
		}
	case "telestrations-game-restart":
		var p roomPayload
		if decode(data, &p) {
			s.relay.Restart(p.RoomName, connID)
		}

	default:
		log.Debug().Str("event", event).Str("conn", connID).Msg("unhandled event")
	}
}

func (s *Server) handleJoin(connID string, data json.RawMessage) {
	var p joinPayload
	if !decode(data, &p) {
		return
	}
	name := utils.NormalizeDisplayName(p.DisplayName)
	if name == "" || p.RoomName == "" {
		return
	}

	id := internal.Identity{
		ConnID:      connID,
		DisplayName: name,
		RoomName:    p.RoomName,
		GameType:    internal.GameType(p.GameType),
	}

	// A connection that joins again is moved, never duplicated: its old
	// session roster is pruned first so the previous room keeps no ghost
	// in its user lists or vote denominators.
	prev, rejoining := s.registry.Lookup(connID)
	s.registry.Register(id)
	if rejoining {
		s.routeLeave(prev)
	}
	s.hub.JoinRoom(connID, p.RoomName)

	switch id.GameType {
	case internal.GameMafia:
		s.deduction.Join(id)
	case internal.GameLiar:
		s.deception.Join(id)
	case internal.GameTelestrations:
		s.relay.Join(id)
	default:
		s.chat.Join(id)
	}
}

// routeLeave hands the identity to the engine that owns its session so
// the roster entry is removed.
func (s *Server) routeLeave(id internal.Identity) {
	switch id.GameType {
	case internal.GameMafia:
		s.deduction.HandleDisconnect(id)
	case internal.GameLiar:
		s.deception.HandleDisconnect(id)
	case internal.GameTelestrations:
		s.relay.HandleDisconnect(id)
	default:
		s.chat.HandleDisconnect(id)
	}
}

// HandleDisconnect fires once per connection teardown: the owning engine
// gets to clean up, then the identity is forgotten.
func (s *Server) HandleDisconnect(connID string) {
	id, ok := s.registry.Lookup(connID)
	if !ok {
		return
	}
	s.registry.Unregister(connID)
	s.routeLeave(id)
	log.Info().Str("conn", connID).Str("room", id.RoomName).Msg("connection closed")
}

func decode(data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Msg("malformed payload")
		return false
	}
	return true
}
