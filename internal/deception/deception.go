// Package deception runs the liar game: everyone but one participant
// receives the same word, the odd one out gets a near-miss word, and
// after a timed discussion the room votes on who the liar is.
package deception

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/logger"
	"github.com/hyeonwoo/partyroom-backend/internal/words"
)

var log = logger.With("deception")

type Phase string

const (
	PhaseWaiting        Phase = "waiting"
	PhaseWordDistribute Phase = "word-distribute"
	PhaseTalk           Phase = "talk"
	PhaseVote           Phase = "vote"
	PhaseResult         Phase = "result"
)

// WordProvider supplies the round's word pair. words.Client is the
// production implementation; tests plug in a fixed pair.
type WordProvider interface {
	WordPair(ctx context.Context) words.Pair
}

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
	Voted    bool   `json:"voted"`
}

type session struct {
	mu sync.Mutex

	room         string
	participants []*Participant
	phase        Phase
	hostID       string

	commonWord    string
	divergentWord string
	divergentID   string

	votes     map[string]string // voterId -> targetId
	roundGen  int
	talkTimer *internal.GameTimer
}

type Config struct {
	DistributeDelay time.Duration
	TalkDuration    time.Duration
}

func DefaultConfig() Config {
	return Config{
		DistributeDelay: 5 * time.Second,
		TalkDuration:    180 * time.Second,
	}
}

type Engine struct {
	gw   internal.Sender
	word WordProvider
	cfg  Config

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewEngine(gw internal.Sender, word WordProvider, cfg Config) *Engine {
	return &Engine{
		gw:       gw,
		word:     word,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

func (e *Engine) update(room, kind string, data any) {
	e.gw.BroadcastToRoom(room, "liar-update", internal.Update{Type: kind, Data: data})
}

func (e *Engine) fail(room, message string) {
	e.gw.BroadcastToRoom(room, "liar-error", internal.ErrorData{Message: message})
}

func (e *Engine) sessionFor(room string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[room]
	if !ok {
		s = &session{
			room:  room,
			phase: PhaseWaiting,
			votes: make(map[string]string),
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

// Join adds the newcomer to the roster. The first joiner hosts.
func (e *Engine) Join(id internal.Identity) {
	s := e.sessionFor(id.RoomName)

	s.mu.Lock()
	p := &Participant{ID: id.ConnID, Username: id.DisplayName}
	if len(s.participants) == 0 {
		p.IsHost = true
		s.hostID = id.ConnID
	}
	s.participants = append(s.participants, p)
	payload := s.rosterPayloadLocked()
	s.mu.Unlock()

	e.update(id.RoomName, "join", payload)
	log.Info().Str("room", id.RoomName).Str("user", id.DisplayName).Msg("joined liar game")
}

// HandleDisconnect removes the participant, reassigns the host when the
// host left, and lets an outstanding vote re-check its threshold.
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
	delete(s.votes, id.ConnID)
	if s.hostID == id.ConnID && len(s.participants) > 0 {
		s.hostID = s.participants[0].ID
		s.participants[0].IsHost = true
	}
	payload := s.rosterPayloadLocked()

	if s.phase == PhaseVote && len(s.votes) > 0 && len(s.votes) >= len(s.participants) {
		e.update(id.RoomName, "leave", payload)
		e.resolveVoteLocked(s) // unlocks
		return
	}
	s.mu.Unlock()

	e.update(id.RoomName, "leave", payload)
}

// StartGame deals the words: the divergent participant gets the
// near-miss word, everyone else the common one, each over their own
// connection only. The roster broadcast never carries either word.
func (e *Engine) StartGame(room, requesterID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.hostID != requesterID {
		s.mu.Unlock()
		e.fail(room, "호스트만 게임을 시작할 수 있습니다.")
		return
	}
	if len(s.participants) < 3 {
		s.mu.Unlock()
		e.fail(room, "게임을 시작하려면 최소 3명이 필요합니다.")
		return
	}
	if s.phase != PhaseWaiting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// The lookup can be slow; never hold the session lock across it.
	pair := e.word.WordPair(context.Background())

	s.mu.Lock()
	if s.phase != PhaseWaiting || len(s.participants) < 3 {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseWordDistribute
	s.commonWord = pair.Common
	s.divergentWord = pair.Divergent
	s.divergentID = s.participants[rand.Intn(len(s.participants))].ID
	s.votes = make(map[string]string)
	s.roundGen++
	gen := s.roundGen

	type deal struct {
		connID string
		word   string
		isLiar bool
	}
	deals := make([]deal, 0, len(s.participants))
	for _, p := range s.participants {
		d := deal{connID: p.ID, word: s.commonWord}
		if p.ID == s.divergentID {
			d.word = s.divergentWord
			d.isLiar = true
		}
		deals = append(deals, d)
	}
	s.mu.Unlock()

	e.update(room, "game-start", map[string]any{"phase": string(PhaseWordDistribute)})
	for _, d := range deals {
		e.gw.SendToConnection(d.connID, "liar-update", internal.Update{
			Type: "word-distribute",
			Data: map[string]any{"myWord": d.word, "isLiar": d.isLiar},
		})
	}
	log.Info().Str("room", room).Msg("liar game started")

	internal.StartGameTimer(e.cfg.DistributeDelay, nil, func() {
		e.beginTalk(room, gen)
	})
}

func (e *Engine) beginTalk(room string, gen int) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.roundGen != gen || s.phase != PhaseWordDistribute {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseTalk
	s.talkTimer = internal.StartGameTimer(e.cfg.TalkDuration,
		func(remaining int) {
			e.update(room, "timer-update", map[string]any{"timer": remaining})
		},
		func() {
			e.beginVote(room, gen)
		})
	s.mu.Unlock()

	e.update(room, "talk-start", map[string]any{"timer": int(e.cfg.TalkDuration.Seconds())})
}

func (e *Engine) beginVote(room string, gen int) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.roundGen != gen || s.phase != PhaseTalk {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseVote
	s.votes = make(map[string]string)
	payload := s.rosterPayloadLocked()
	s.mu.Unlock()

	e.update(room, "vote-start", payload)
}

// Message relays discussion chat. Outside the talk phase it is dropped.
func (e *Engine) Message(room, connID, username, message string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}
	s.mu.Lock()
	talking := s.phase == PhaseTalk
	s.mu.Unlock()
	if !talking {
		return
	}
	e.update(room, "message", map[string]any{
		"username":  username,
		"message":   message,
		"timestamp": internal.Timestamp(time.Now()),
	})
}

// CastVote records one ballot per connection and resolves once every
// remaining participant has voted.
func (e *Engine) CastVote(room, voterID, targetID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.phase != PhaseVote {
		s.mu.Unlock()
		return
	}
	if _, voted := s.votes[voterID]; voted {
		s.mu.Unlock()
		return
	}
	s.votes[voterID] = targetID
	if p := s.byID(voterID); p != nil {
		p.Voted = true
	}

	votedCount := len(s.votes)
	voteCount := s.tallyLocked()

	if votedCount >= len(s.participants) {
		e.update(room, "vote-update", map[string]any{
			"votedCount": votedCount,
			"voteCount":  voteCount,
		})
		e.resolveVoteLocked(s) // unlocks
		return
	}
	s.mu.Unlock()

	e.update(room, "vote-update", map[string]any{
		"votedCount": votedCount,
		"voteCount":  voteCount,
	})
}

// resolveVoteLocked picks the most-voted participant; an exact tie goes
// to whoever joined earlier. Called with s.mu held; unlocks before
// emitting.
func (e *Engine) resolveVoteLocked(s *session) {
	room := s.room

	voteCount := s.tallyLocked()
	caughtID := ""
	caughtVotes := -1
	for _, p := range s.participants {
		if voteCount[p.ID] > caughtVotes {
			caughtID = p.ID
			caughtVotes = voteCount[p.ID]
		}
	}

	winner := "liar"
	message := "라이어가 정체를 숨겼습니다! 라이어의 승리입니다!"
	if caughtID == s.divergentID {
		winner = "citizens"
		message = "라이어를 찾아냈습니다! 시민의 승리입니다!"
	}

	liarName := ""
	if p := s.byID(s.divergentID); p != nil {
		liarName = p.Username
	}
	caughtName := ""
	if p := s.byID(caughtID); p != nil {
		caughtName = p.Username
	}

	s.phase = PhaseResult
	payload := map[string]any{
		"winner":    winner,
		"message":   message,
		"liar":      liarName,
		"mostVoted": caughtName,
		"word":      s.commonWord,
		"liarWord":  s.divergentWord,
		"voteCount": voteCount,
	}
	s.mu.Unlock()

	e.update(room, "result", payload)
	log.Info().Str("room", room).Str("winner", winner).Msg("liar game resolved")
}

// Restart returns the room to the lobby, keeping roster and host.
func (e *Engine) Restart(room, requesterID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.hostID != requesterID {
		s.mu.Unlock()
		e.fail(room, "호스트만 게임을 다시 시작할 수 있습니다.")
		return
	}
	s.phase = PhaseWaiting
	s.commonWord = ""
	s.divergentWord = ""
	s.divergentID = ""
	s.votes = make(map[string]string)
	s.roundGen++
	if s.talkTimer != nil {
		s.talkTimer.Cancel()
		s.talkTimer = nil
	}
	for _, p := range s.participants {
		p.Voted = false
	}
	payload := s.rosterPayloadLocked()
	s.mu.Unlock()

	e.update(room, "restart", payload)
}

func (s *session) rosterPayloadLocked() map[string]any {
	players := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		players = append(players, *p)
	}
	return map[string]any{
		"players": players,
		"phase":   string(s.phase),
	}
}

func (s *session) byID(id string) *Participant {
	for _, p := range s.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *session) tallyLocked() map[string]int {
	tally := make(map[string]int)
	for _, targetID := range s.votes {
		tally[targetID]++
	}
	return tally
}
