package deduction

import (
	"fmt"

	"github.com/hyeonwoo/partyroom-backend/internal"
)

const maxHealth = 3

type emission struct {
	kind string
	data any
}

// BeginVote opens the day's accusation vote and arms its deadline. One
// vote per day: once voteUsed is set the request is ignored.
func (e *Engine) BeginVote(room string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.started || s.voteUsed || s.phase == PhaseOver {
		s.mu.Unlock()
		return
	}
	s.pendingVotes = make(map[string]string)
	s.voteGen++
	gen := s.voteGen
	if s.voteTimer != nil {
		s.voteTimer.Cancel()
	}
	s.voteTimer = internal.StartGameTimer(e.cfg.VoteTimeout, nil, func() {
		e.voteDeadline(room, gen)
	})
	s.mu.Unlock()

	e.update(room, "vote-start", map[string]any{"duration": int(e.cfg.VoteTimeout.Seconds())})
}

// CastVote records one ballot per voter. A repeat ballot from the same
// voter is dropped. The vote resolves as soon as every living
// participant has voted; otherwise the deadline resolves it with the
// missing voters counted as abstentions.
func (e *Engine) CastVote(room, voterID, targetID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.started || s.voteUsed || s.phase == PhaseOver {
		s.mu.Unlock()
		return
	}
	if _, voted := s.pendingVotes[voterID]; voted {
		s.mu.Unlock()
		return
	}
	s.pendingVotes[voterID] = targetID

	if len(s.pendingVotes) >= s.aliveCount() {
		e.resolveVoteLocked(s)
		return
	}
	s.mu.Unlock()
}

func (e *Engine) voteDeadline(room string, gen int) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.voteGen != gen || s.voteUsed || s.phase == PhaseOver {
		s.mu.Unlock()
		return
	}
	e.resolveVoteLocked(s)
}

// resolveVoteLocked tallies the ballots and applies the outcome. A
// unique plurality above one vote costs the target a health point, or
// ends the game outright when the target is the wildcard. Ties and
// all-singleton tallies skip the elimination. Called with s.mu held;
// unlocks before emitting.
func (e *Engine) resolveVoteLocked(s *session) {
	room := s.room

	tally := make(map[string]int)
	for _, targetID := range s.pendingVotes {
		if s.byID(targetID) != nil {
			tally[targetID]++
		}
	}
	maxVotes := 0
	var leaders []string
	for targetID, n := range tally {
		switch {
		case n > maxVotes:
			maxVotes = n
			leaders = []string{targetID}
		case n == maxVotes:
			leaders = append(leaders, targetID)
		}
	}

	s.pendingVotes = make(map[string]string)
	s.voteGen++
	if s.voteTimer != nil {
		s.voteTimer.Cancel()
		s.voteTimer = nil
	}
	s.voteUsed = true

	var out []emission
	if len(leaders) == 1 && maxVotes > 1 {
		target := s.byID(leaders[0])
		if target.Role == RoleWildcard {
			s.phase = PhaseOver
			out = append(out, emission{"game-over", map[string]any{
				"winner":  "joker",
				"message": fmt.Sprintf("%s이(가) 투표받았습니다! 조커의 승리입니다!", target.Username),
			}})
		} else {
			damageLocked(target)
			out = append(out, emission{"vote", map[string]any{
				"targetId": target.ID,
				"player":   *target,
				"message":  describeElimination(*target),
			}})
			out = append(out, winEmissionLocked(s)...)
		}
	} else {
		out = append(out, emission{"vote-skip", map[string]any{
			"message": "투표가 무산되었습니다.",
		}})
	}
	s.mu.Unlock()

	for _, em := range out {
		e.update(room, em.kind, em.data)
	}
}

// Attack is the saboteur's night action. Striking the wildcard for the
// first time bounces the hit back onto a living saboteur and shields the
// wildcard from further redirects.
func (e *Engine) Attack(room, targetID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.started || s.phase == PhaseOver {
		s.mu.Unlock()
		return
	}
	target := s.byID(targetID)
	if target == nil {
		s.mu.Unlock()
		return
	}

	if target.Role == RoleWildcard && !target.wildcardStruck {
		target.wildcardStruck = true
		for _, p := range s.participants {
			if p.Role == RoleSaboteur && p.IsAlive {
				target = p
				break
			}
		}
	}
	damageLocked(target)
	s.phase = PhaseHealing

	out := []emission{{"attack", map[string]any{
		"targetId": target.ID,
		"player":   *target,
		"message":  fmt.Sprintf("%s님이 공격받았습니다.", target.Username),
	}}}
	out = append(out, winEmissionLocked(s)...)
	over := s.phase == PhaseOver
	s.mu.Unlock()

	for _, em := range out {
		e.update(room, em.kind, em.data)
	}
	if over {
		return
	}

	// Fixed delay for the attack animation, then daybreak. Not stored on
	// the session: a heal arriving first just wins the phase race.
	internal.StartGameTimer(e.cfg.PhaseDelay, nil, func() {
		e.daybreak(room)
	})
}

// Heal restores one health point, capped at full health, and brings the
// day back immediately.
func (e *Engine) Heal(room, targetID string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.started || s.phase == PhaseOver {
		s.mu.Unlock()
		return
	}
	target := s.byID(targetID)
	if target == nil {
		s.mu.Unlock()
		return
	}
	if target.HealthPoints < maxHealth {
		target.HealthPoints++
	}
	target.IsAlive = target.HealthPoints > 0
	s.phase = PhaseDay
	s.voteUsed = false
	snapshot := *target
	s.mu.Unlock()

	e.update(room, "heal", map[string]any{
		"targetId": targetID,
		"player":   snapshot,
		"message":  fmt.Sprintf("%s님이 치료받았습니다.", snapshot.Username),
	})
	e.update(room, "phase-change", map[string]any{
		"phase":   string(PhaseDay),
		"message": "낮이 되었습니다.",
	})
}

// daybreak ends the healing window when no heal arrived in time.
func (e *Engine) daybreak(room string) {
	s, ok := e.lookup(room)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.phase != PhaseHealing {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseDay
	s.voteUsed = false
	s.mu.Unlock()

	e.update(room, "phase-change", map[string]any{
		"phase":   string(PhaseDay),
		"message": "낮이 되었습니다.",
	})
}

func damageLocked(p *Participant) {
	if p.HealthPoints > 0 {
		p.HealthPoints--
	}
	p.IsAlive = p.HealthPoints > 0
}

// winEmissionLocked checks the factions after an elimination. The
// wildcard survives with the bystanders for this purpose.
func winEmissionLocked(s *session) []emission {
	aliveSaboteurs := 0
	aliveOthers := 0
	for _, p := range s.participants {
		if !p.IsAlive {
			continue
		}
		if p.Role == RoleSaboteur {
			aliveSaboteurs++
		} else {
			aliveOthers++
		}
	}

	switch {
	case aliveSaboteurs == 0:
		s.phase = PhaseOver
		return []emission{{"game-over", map[string]any{
			"winner":  "citizens",
			"message": "모든 마피아가 제거되었습니다! 시민의 승리입니다!",
		}}}
	case aliveOthers == 0:
		s.phase = PhaseOver
		return []emission{{"game-over", map[string]any{
			"winner":  "mafia",
			"message": "모든 시민이 사망했습니다! 마피아의 승리입니다!",
		}}}
	}
	return nil
}
