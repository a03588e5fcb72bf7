// Package deduction runs the social-deduction game: one hidden saboteur
// whittles the room down at night while the room votes by day, with a
// wildcard third faction that wins by getting itself voted out.
package deduction

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/logger"
)

var log = logger.With("deduction")

const (
	RoleSaboteur  = "mafia"
	RoleHealer    = "doctor"
	RoleWildcard  = "joker"
	RoleBystander = "citizen"
)

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseDay     Phase = "day"
	PhaseNight   Phase = "night"
	PhaseHealing Phase = "doctor-healing"
	PhaseOver    Phase = "game-over"
)

// Wire names stay aligned with the original chat client, so role and
// field labels keep their legacy values.
type Participant struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	IsAlive      bool   `json:"isAlive"`
	HealthPoints int    `json:"lives"`
	IsShielded   bool   `json:"isProtected"`

	wildcardStruck bool
}

type session struct {
	mu sync.Mutex

	room         string
	participants []*Participant
	phase        Phase
	started      bool
	voteUsed     bool

	pendingVotes map[string]string // voterId -> targetId
	voteGen      int
	voteTimer    *internal.GameTimer
}

// Config holds the timer settings; tests shrink them.
type Config struct {
	VoteTimeout time.Duration
	PhaseDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		VoteTimeout: 20 * time.Second,
		PhaseDelay:  2 * time.Second,
	}
}

type Engine struct {
	gw  internal.Sender
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewEngine(gw internal.Sender, cfg Config) *Engine {
	return &Engine{
		gw:       gw,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

func (e *Engine) update(room, kind string, data any) {
	e.gw.BroadcastToRoom(room, "mafia-update", internal.Update{Type: kind, Data: data})
}

// sessionFor returns the room's session, creating it on first use.
func (e *Engine) sessionFor(room string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[room]
	if !ok {
		s = &session{
			room:         room,
			phase:        PhaseWaiting,
			pendingVotes: make(map[string]string),
		}
		e.sessions[room] = s
	}
	return s
}

func (e *Engine) lookup(room string) (*session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[room]
	return s, ok
}

// Join appends the newcomer to the roster and announces them.
func (e *Engine) Join(id internal.Identity) {
	s := e.sessionFor(id.RoomName)

	p := &Participant{
		ID:           id.ConnID,
		Username:     id.DisplayName,
		Role:         RoleBystander,
		IsAlive:      true,
		HealthPoints: maxHealth,
	}

	s.mu.Lock()
	s.participants = append(s.participants, p)
	snapshot := *p
	s.mu.Unlock()

	e.update(id.RoomName, "join", map[string]any{"player": snapshot})
	log.Info().Str("room", id.RoomName).Str("user", id.DisplayName).Msg("joined deduction game")
}

// HandleDisconnect drops the participant and any ballot they cast. An
// outstanding vote re-checks its threshold, since the departure may have
// been the last missing ballot.
func (e *Engine) HandleDisconnect(id internal.Identity) {
	s, ok := e.lookup(id.RoomName)
	if !ok {
		return
	}

	s.mu.Lock()
	removed := false
	for i, p := range s.participants {
		if p.ID == id.ConnID {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		s.mu.Unlock()
		return
	}
	delete(s.pendingVotes, id.ConnID)
	s.mu.Unlock()

	e.update(id.RoomName, "leave", map[string]any{"playerId": id.ConnID})

	s.mu.Lock()
	if s.started && !s.voteUsed && len(s.pendingVotes) > 0 && len(s.pendingVotes) >= s.aliveCount() {
		e.resolveVoteLocked(s)
		return // resolveVoteLocked unlocks
	}
	s.mu.Unlock()
}

// Message relays a game chat message to the whole room.
func (e *Engine) Message(room string, message any) {
	if _, ok := e.lookup(room); !ok {
		return
	}
	e.update(room, "message", message)
}

// StartGame shuffles the roster and deals roles: one saboteur, one
// wildcard, a healer when four or more play, bystanders for the rest.
func (e *Engine) StartGame(room string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if len(s.participants) < 3 {
		s.mu.Unlock()
		e.gw.BroadcastToRoom(room, "mafia-error", internal.ErrorData{Message: "게임을 시작하려면 최소 3명이 필요합니다."})
		return
	}

	rand.Shuffle(len(s.participants), func(i, j int) {
		s.participants[i], s.participants[j] = s.participants[j], s.participants[i]
	})
	for i, p := range s.participants {
		switch {
		case i == 0:
			p.Role = RoleSaboteur
		case i == 1 && len(s.participants) >= 4:
			p.Role = RoleHealer
		case i == 2:
			p.Role = RoleWildcard
		default:
			p.Role = RoleBystander
		}
		p.IsAlive = true
		p.HealthPoints = maxHealth
		p.IsShielded = false
		p.wildcardStruck = false
	}

	s.started = true
	s.phase = PhaseDay
	s.voteUsed = false
	s.pendingVotes = make(map[string]string)
	s.voteGen++
	if s.voteTimer != nil {
		s.voteTimer.Cancel()
		s.voteTimer = nil
	}
	snapshot := s.snapshotParticipants()
	s.mu.Unlock()

	e.update(room, "game-start", map[string]any{"players": snapshot})
	log.Info().Str("room", room).Int("players", len(snapshot)).Msg("deduction game started")
}

func (s *session) snapshotParticipants() []Participant {
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

func (s *session) aliveCount() int {
	n := 0
	for _, p := range s.participants {
		if p.IsAlive {
			n++
		}
	}
	return n
}

func (s *session) byID(id string) *Participant {
	for _, p := range s.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func describeElimination(p Participant) string {
	return fmt.Sprintf("%s님이 투표로 지목되었습니다.", p.Username)
}
