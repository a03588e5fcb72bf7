package chat

// kickVote tracks one open vote against a target. ballots maps voter
// display name to agree/disagree; a repeat ballot from the same voter
// overwrites the earlier one.
type kickVote struct {
	ballots map[string]bool
}

type KickVoteRequestPayload struct {
	TargetDisplayName string `json:"targetDisplayName"`
	RoomName          string `json:"roomName"`
}

type KickVotePayload struct {
	TargetDisplayName string `json:"targetDisplayName"`
	RoomName          string `json:"roomName"`
	Agree             bool   `json:"agree"`
	VoterDisplayName  string `json:"voterDisplayName"`
}

type KickPayload struct {
	TargetDisplayName string `json:"targetDisplayName"`
	RoomName          string `json:"roomName"`
}

type kickVoteStart struct {
	TargetDisplayName string `json:"targetDisplayName"`
}

type kickVoteUpdate struct {
	TargetDisplayName string   `json:"targetDisplayName"`
	AgreeCount        int      `json:"agreeCount"`
	TotalCount        int      `json:"totalCount"`
	Voted             []string `json:"voted"`
}

type kickVoteResult struct {
	TargetDisplayName string `json:"targetDisplayName"`
	Result            string `json:"result"`
}

// RequestKickVote opens a vote against the target, unconditionally
// resetting any ballots from a previous vote on the same target.
func (e *Engine) RequestKickVote(p KickVoteRequestPayload) {
	e.mu.Lock()
	room, ok := e.kickVotes[p.RoomName]
	if !ok {
		room = make(map[string]*kickVote)
		e.kickVotes[p.RoomName] = room
	}
	room[p.TargetDisplayName] = &kickVote{ballots: make(map[string]bool)}
	e.mu.Unlock()

	e.gw.BroadcastToRoom(p.RoomName, "kickVoteStart", kickVoteStart{TargetDisplayName: p.TargetDisplayName})
	log.Info().Str("room", p.RoomName).Str("target", p.TargetDisplayName).Msg("kick vote opened")
}

// CastKickVote records one ballot. Ballots on a vote that is not open
// are dropped. The vote resolves once every room member other than the
// target has voted; the target is kicked on a strict majority of that
// same electorate.
func (e *Engine) CastKickVote(p KickVotePayload) {
	e.mu.Lock()
	vote, ok := e.kickVotes[p.RoomName][p.TargetDisplayName]
	if !ok {
		e.mu.Unlock()
		return
	}
	vote.ballots[p.VoterDisplayName] = p.Agree

	agreeCount := 0
	voted := make([]string, 0, len(vote.ballots))
	for voter, agree := range vote.ballots {
		voted = append(voted, voter)
		if agree {
			agreeCount++
		}
	}
	ballotsCast := len(vote.ballots)

	// Room size is re-read on every ballot so that departures shrink
	// the quorum instead of stalling the vote forever.
	totalCount := len(e.registry.ListRoom(p.RoomName))

	resolved := ballotsCast >= totalCount-1
	kicked := resolved && agreeCount > (totalCount-1)/2
	if resolved {
		delete(e.kickVotes[p.RoomName], p.TargetDisplayName)
	}
	e.mu.Unlock()

	e.gw.BroadcastToRoom(p.RoomName, "kickVoteUpdate", kickVoteUpdate{
		TargetDisplayName: p.TargetDisplayName,
		AgreeCount:        agreeCount,
		TotalCount:        totalCount,
		Voted:             voted,
	})

	if !resolved {
		return
	}
	if kicked {
		e.kickTarget(p.RoomName, p.TargetDisplayName)
		e.gw.BroadcastToRoom(p.RoomName, "kickVoteResult", kickVoteResult{
			TargetDisplayName: p.TargetDisplayName,
			Result:            "kicked",
		})
	} else {
		e.gw.BroadcastToRoom(p.RoomName, "kickVoteResult", kickVoteResult{
			TargetDisplayName: p.TargetDisplayName,
			Result:            "not_kicked",
		})
	}
	log.Info().Str("room", p.RoomName).Str("target", p.TargetDisplayName).Bool("kicked", kicked).Msg("kick vote resolved")
}

// Kick removes the target immediately, without a vote.
func (e *Engine) Kick(p KickPayload) {
	e.kickTarget(p.RoomName, p.TargetDisplayName)
}

func (e *Engine) kickTarget(room, targetDisplayName string) {
	connID, ok := e.registry.FindByName(room, targetDisplayName)
	if !ok {
		return
	}
	e.gw.SendToConnection(connID, "kicked", struct{}{})
	e.gw.Disconnect(connID)
}
