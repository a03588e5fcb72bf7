// Package relay runs the drawing-relay game: every participant seeds a
// sketchbook with a word, the books rotate every round, and each holder
// alternates between drawing the previous word and guessing the previous
// drawing until the books come back full.
package relay

import (
	"sync"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/logger"
)

var log = logger.With("relay")

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseWordInput Phase = "word-input"
	PhaseDrawing   Phase = "drawing"
	PhaseGuessing  Phase = "guessing"
	PhaseResults   Phase = "results"
)

const (
	PageWord    = "word"
	PageDrawing = "drawing"
)

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Page struct {
	Type   string `json:"type"`
	Author string `json:"author"`
	Data   string `json:"data"`
}

type Book struct {
	Owner string `json:"owner"`
	Pages []Page `json:"pages"`

	ownerID string
	frozen  bool
}

type session struct {
	mu sync.Mutex

	room         string
	participants []*Participant
	hostID       string
	phase        Phase

	round       int
	rounds      int // pages per book, fixed when the game starts
	books       []*Book
	assignments map[string]*Book
	submitted   map[string]bool
}

type Engine struct {
	gw internal.Sender

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewEngine(gw internal.Sender) *Engine {
	return &Engine{
		gw:       gw,
		sessions: make(map[string]*session),
	}
}

func (e *Engine) update(room, kind string, data any) {
	e.gw.BroadcastToRoom(room, "telestrations-update", internal.Update{Type: kind, Data: data})
}

func (e *Engine) send(connID, kind string, data any) {
	e.gw.SendToConnection(connID, "telestrations-update", internal.Update{Type: kind, Data: data})
}

func (e *Engine) fail(connID, message string) {
	e.gw.SendToConnection(connID, "telestrations-error", internal.ErrorData{Message: message})
}

func (e *Engine) sessionFor(room string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[room]
	if !ok {
		s = &session{
			room:        room,
			phase:       PhaseWaiting,
			assignments: make(map[string]*Book),
			submitted:   make(map[string]bool),
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

// Join adds the newcomer. The first joiner hosts.
func (e *Engine) Join(id internal.Identity) {
	s := e.sessionFor(id.RoomName)

	s.mu.Lock()
	if len(s.participants) == 0 {
		s.hostID = id.ConnID
	}
	s.participants = append(s.participants, &Participant{ID: id.ConnID, Username: id.DisplayName})
	payload := s.rosterPayloadLocked()
	s.mu.Unlock()

	e.update(id.RoomName, "join", payload)
	log.Info().Str("room", id.RoomName).Str("user", id.DisplayName).Msg("joined drawing relay")
}

// HandleDisconnect removes the participant from the rotation and freezes
// their own book where it stands; a frozen book is shown in the results
// but receives no further pages. The whole session is dropped when the
// last participant leaves.
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

	if len(s.participants) == 0 {
		s.mu.Unlock()
		e.mu.Lock()
		delete(e.sessions, id.RoomName)
		e.mu.Unlock()
		log.Info().Str("room", id.RoomName).Msg("drawing relay session removed")
		return
	}

	if s.hostID == id.ConnID {
		s.hostID = s.participants[0].ID
	}
	for _, b := range s.books {
		if b.ownerID == id.ConnID {
			b.frozen = true
		}
	}
	delete(s.assignments, id.ConnID)
	delete(s.submitted, id.ConnID)
	payload := s.rosterPayloadLocked()

	var out []emission
	if s.inRoundLocked() {
		if s.activeBooksLocked() == 0 {
			// Every book froze with its owner gone; reveal what exists
			// rather than rotating over nothing.
			out = s.resultsLocked()
		} else if s.allSubmittedLocked() {
			out = e.advanceLocked(s)
		}
	}
	s.mu.Unlock()

	e.update(id.RoomName, "leave", payload)
	e.emit(id.RoomName, out)
}

// StartGame deals one empty book per participant, owner first, and opens
// the word-input round.
func (e *Engine) StartGame(room, requesterID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.hostID != requesterID {
		s.mu.Unlock()
		e.fail(requesterID, "호스트만 게임을 시작할 수 있습니다.")
		return
	}
	if len(s.participants) < 3 {
		s.mu.Unlock()
		e.fail(requesterID, "게임을 시작하려면 최소 3명이 필요합니다.")
		return
	}
	if s.phase != PhaseWaiting {
		s.mu.Unlock()
		return
	}

	s.round = 0
	s.rounds = len(s.participants)
	s.phase = PhaseWordInput
	s.books = make([]*Book, 0, len(s.participants))
	s.assignments = make(map[string]*Book)
	s.submitted = make(map[string]bool)
	for _, p := range s.participants {
		b := &Book{Owner: p.Username, Pages: []Page{}, ownerID: p.ID}
		s.books = append(s.books, b)
		s.assignments[p.ID] = b
	}
	payload := map[string]any{
		"players": s.rosterLocked(),
		"hostId":  s.hostID,
		"phase":   string(PhaseWordInput),
	}
	s.mu.Unlock()

	e.update(room, "game-start", payload)
	log.Info().Str("room", room).Msg("drawing relay started")
}

// SubmitTurn appends the participant's page to the book currently in
// front of them. The round advances once every remaining participant has
// submitted; full books end the game.
func (e *Engine) SubmitTurn(room, connID, data string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	if data == "" {
		e.fail(connID, "내용을 입력해주세요.")
		return
	}

	s.mu.Lock()
	if !s.inRoundLocked() {
		s.mu.Unlock()
		return
	}
	book, assigned := s.assignments[connID]
	if !assigned || s.submitted[connID] {
		s.mu.Unlock()
		return
	}
	author := ""
	if p := s.byID(connID); p != nil {
		author = p.Username
	}

	book.Pages = append(book.Pages, Page{
		Type:   s.expectedPageTypeLocked(),
		Author: author,
		Data:   data,
	})
	s.submitted[connID] = true

	progress := map[string]any{
		"submittedCount": len(s.submitted),
		"totalCount":     len(s.participants),
	}

	var out []emission
	if s.allSubmittedLocked() {
		out = e.advanceLocked(s)
	}
	s.mu.Unlock()

	e.update(room, "turn-submitted", progress)
	e.emit(room, out)
}

// Restart clears the books and returns to the lobby, keeping roster and
// host.
func (e *Engine) Restart(room, requesterID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.hostID != requesterID {
		s.mu.Unlock()
		e.fail(requesterID, "호스트만 게임을 다시 시작할 수 있습니다.")
		return
	}
	s.phase = PhaseWaiting
	s.round = 0
	s.rounds = 0
	s.books = nil
	s.assignments = make(map[string]*Book)
	s.submitted = make(map[string]bool)
	payload := s.rosterPayloadLocked()
	s.mu.Unlock()

	e.update(room, "restart", payload)
}

type emission struct {
	connID string // empty for room-wide
	kind   string
	data   any
}

func (e *Engine) emit(room string, out []emission) {
	for _, em := range out {
		if em.connID == "" {
			e.update(room, em.kind, em.data)
		} else {
			e.send(em.connID, em.kind, em.data)
		}
	}
}

// advanceLocked moves to the next round: rotate the unfrozen books one
// step past the live participants and flip the expected page type, or
// reveal the results when the books are full.
func (e *Engine) advanceLocked(s *session) []emission {
	s.round++

	active := make([]*Book, 0, len(s.books))
	for _, b := range s.books {
		if !b.frozen {
			active = append(active, b)
		}
	}

	// Done when the books are full, and early when every book froze.
	if s.round >= s.rounds || len(active) == 0 {
		return s.resultsLocked()
	}

	if s.round%2 == 1 {
		s.phase = PhaseDrawing
	} else {
		s.phase = PhaseGuessing
	}
	s.submitted = make(map[string]bool)
	s.assignments = make(map[string]*Book)

	out := make([]emission, 0, len(s.participants)+1)
	out = append(out, emission{kind: "phase-change", data: map[string]any{
		"phase": string(s.phase),
	}})
	for j, p := range s.participants {
		// There is one book per founding participant; anyone beyond
		// that joined mid-game and sits out until the next restart, so
		// no book is ever held by two participants at once.
		if j >= len(active) {
			break
		}
		b := active[(j+s.round)%len(active)]
		s.assignments[p.ID] = b
		var last *Page
		if n := len(b.Pages); n > 0 {
			page := b.Pages[n-1]
			last = &page
		}
		out = append(out, emission{connID: p.ID, kind: "turn-start", data: map[string]any{
			"phase":           string(s.phase),
			"currentBookPage": last,
		}})
	}
	return out
}

func (s *session) resultsLocked() []emission {
	s.phase = PhaseResults
	results := make([]Book, 0, len(s.books))
	for _, b := range s.books {
		results = append(results, *b)
	}
	return []emission{{kind: "results", data: map[string]any{
		"phase":   string(PhaseResults),
		"results": results,
	}}}
}

func (s *session) expectedPageTypeLocked() string {
	if s.round%2 == 0 {
		return PageWord
	}
	return PageDrawing
}

func (s *session) activeBooksLocked() int {
	n := 0
	for _, b := range s.books {
		if !b.frozen {
			n++
		}
	}
	return n
}

func (s *session) inRoundLocked() bool {
	switch s.phase {
	case PhaseWordInput, PhaseDrawing, PhaseGuessing:
		return true
	}
	return false
}

// allSubmittedLocked only counts participants holding a book this
// round; a mid-game joiner waits out the current round.
func (s *session) allSubmittedLocked() bool {
	if len(s.assignments) == 0 {
		return false
	}
	for _, p := range s.participants {
		if _, holding := s.assignments[p.ID]; holding && !s.submitted[p.ID] {
			return false
		}
	}
	return true
}

func (s *session) byID(id string) *Participant {
	for _, p := range s.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *session) rosterLocked() []Participant {
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

func (s *session) rosterPayloadLocked() map[string]any {
	return map[string]any{
		"players": s.rosterLocked(),
		"hostId":  s.hostID,
		"phase":   string(s.phase),
	}
}
