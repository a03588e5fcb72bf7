package deception

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonwoo/partyroom-backend/internal"
	"github.com/hyeonwoo/partyroom-backend/internal/words"
)

type fixedProvider struct {
	pair words.Pair
}

func (f fixedProvider) WordPair(ctx context.Context) words.Pair {
	return f.pair
}

func testConfig() Config {
	return Config{
		DistributeDelay: 30 * time.Millisecond,
		TalkDuration:    60 * time.Millisecond,
	}
}

func setupGame(t *testing.T, room string, names ...string) (*Engine, *fakeSender) {
	t.Helper()
	gw := newFakeSender()
	eng := NewEngine(gw, fixedProvider{words.Pair{Common: "사과", Divergent: "복숭아"}}, testConfig())
	for i, name := range names {
		eng.Join(internal.Identity{
			ConnID:      string(rune('a' + i)),
			DisplayName: name,
			RoomName:    room,
			GameType:    internal.GameLiar,
		})
	}
	return eng, gw
}

// forceVote jumps the session straight into the vote phase with a known
// divergent participant, bypassing the timed distribute/talk flow.
func forceVote(eng *Engine, room, divergentID string) {
	s, _ := eng.lookup(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseVote
	s.commonWord = "사과"
	s.divergentWord = "복숭아"
	s.divergentID = divergentID
	s.votes = make(map[string]string)
}

func updatesOf(gw *fakeSender, kind string) []internal.Update {
	var out []internal.Update
	for _, e := range gw.broadcastsOf("liar-update") {
		u := e.Data.(internal.Update)
		if u.Type == kind {
			out = append(out, u)
		}
	}
	return out
}

func TestFirstJoinerHosts(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희")

	joins := updatesOf(gw, "join")
	require.Len(t, joins, 2)
	players := joins[1].Data.(map[string]any)["players"].([]Participant)
	require.Len(t, players, 2)
	assert.True(t, players[0].IsHost)
	assert.False(t, players[1].IsHost)

	s, ok := eng.lookup("r1")
	require.True(t, ok)
	assert.Equal(t, "a", s.hostID)
}

func TestStartGameRequiresHost(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")

	eng.StartGame("r1", "b")

	assert.Empty(t, updatesOf(gw, "game-start"))
	require.Len(t, gw.broadcastsOf("liar-error"), 1)
}

func TestStartGameRequiresThreePlayers(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희")

	eng.StartGame("r1", "a")

	assert.Empty(t, updatesOf(gw, "game-start"))
	require.Len(t, gw.broadcastsOf("liar-error"), 1)
}

func TestStartGameDistributesWordsConfidentially(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")

	eng.StartGame("r1", "a")

	require.Len(t, updatesOf(gw, "game-start"), 1)

	deals := gw.directOf("liar-update")
	require.Len(t, deals, 3)
	liarCount := 0
	for _, d := range deals {
		data := d.Data.(internal.Update).Data.(map[string]any)
		if data["isLiar"].(bool) {
			liarCount++
			assert.Equal(t, "복숭아", data["myWord"])
		} else {
			assert.Equal(t, "사과", data["myWord"])
		}
	}
	assert.Equal(t, 1, liarCount, "exactly one divergent participant")

	// No room-wide broadcast may leak either word during the deal.
	for _, b := range gw.broadcastsOf("liar-update") {
		raw, err := json.Marshal(b.Data)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "복숭아")
		assert.NotContains(t, string(raw), "사과")
	}
}

func TestTalkAndVotePhasesFollowTimers(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")

	eng.StartGame("r1", "a")

	require.Eventually(t, func() bool {
		return len(updatesOf(gw, "talk-start")) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(updatesOf(gw, "vote-start")) == 1
	}, time.Second, 5*time.Millisecond)

	s, _ := eng.lookup("r1")
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	assert.Equal(t, PhaseVote, phase)
}

func TestMessageOnlyRelayedDuringTalk(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")

	eng.Message("r1", "a", "민수", "게임 전 메시지")
	assert.Empty(t, updatesOf(gw, "message"))

	s, _ := eng.lookup("r1")
	s.mu.Lock()
	s.phase = PhaseTalk
	s.mu.Unlock()

	eng.Message("r1", "a", "민수", "안녕하세요")
	msgs := updatesOf(gw, "message")
	require.Len(t, msgs, 1)
	data := msgs[0].Data.(map[string]any)
	assert.Equal(t, "민수", data["username"])
	assert.Equal(t, "안녕하세요", data["message"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestVoteCatchingLiarWinsForCitizens(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")
	forceVote(eng, "r1", "c")

	eng.CastVote("r1", "a", "c")
	eng.CastVote("r1", "b", "c")
	eng.CastVote("r1", "c", "a")

	results := updatesOf(gw, "result")
	require.Len(t, results, 1)
	data := results[0].Data.(map[string]any)
	assert.Equal(t, "citizens", data["winner"])
	assert.Equal(t, "철수", data["liar"])
	assert.Equal(t, "철수", data["mostVoted"])
	assert.Equal(t, "사과", data["word"])
	assert.Equal(t, "복숭아", data["liarWord"])
	assert.Equal(t, map[string]int{"c": 2, "a": 1}, data["voteCount"])
}

func TestVoteMissingLiarWinsForLiar(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")
	forceVote(eng, "r1", "a")

	eng.CastVote("r1", "a", "c")
	eng.CastVote("r1", "b", "c")
	eng.CastVote("r1", "c", "b")

	results := updatesOf(gw, "result")
	require.Len(t, results, 1)
	data := results[0].Data.(map[string]any)
	assert.Equal(t, "liar", data["winner"])
	assert.Equal(t, "민수", data["liar"])
	assert.Equal(t, "철수", data["mostVoted"])
}

func TestVoteTieGoesToEarlierJoiner(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수", "지민")
	forceVote(eng, "r1", "d")

	eng.CastVote("r1", "a", "b")
	eng.CastVote("r1", "b", "c")
	eng.CastVote("r1", "c", "b")
	eng.CastVote("r1", "d", "c")

	results := updatesOf(gw, "result")
	require.Len(t, results, 1)
	assert.Equal(t, "영희", results[0].Data.(map[string]any)["mostVoted"])
}

func TestVoteRepeatBallotIgnored(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")
	forceVote(eng, "r1", "c")

	eng.CastVote("r1", "a", "c")
	eng.CastVote("r1", "a", "b")

	updates := updatesOf(gw, "vote-update")
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].Data.(map[string]any)["votedCount"])
	assert.Empty(t, updatesOf(gw, "result"))
}

func TestDisconnectDuringVoteTriggersResolution(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")
	forceVote(eng, "r1", "b")

	eng.CastVote("r1", "a", "b")
	eng.CastVote("r1", "b", "a")

	eng.HandleDisconnect(internal.Identity{ConnID: "c", RoomName: "r1", GameType: internal.GameLiar})

	require.Len(t, updatesOf(gw, "leave"), 1)
	require.Len(t, updatesOf(gw, "result"), 1)
}

func TestHostReassignedOnHostDisconnect(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")

	eng.HandleDisconnect(internal.Identity{ConnID: "a", RoomName: "r1", GameType: internal.GameLiar})

	leaves := updatesOf(gw, "leave")
	require.Len(t, leaves, 1)
	players := leaves[0].Data.(map[string]any)["players"].([]Participant)
	require.Len(t, players, 2)
	assert.True(t, players[0].IsHost)
	assert.Equal(t, "영희", players[0].Username)

	// The new host may start the game.
	eng.StartGame("r1", "b")
	assert.Empty(t, updatesOf(gw, "game-start"))
	require.Len(t, gw.broadcastsOf("liar-error"), 1, "still below the player minimum")
}

func TestRestartKeepsRosterAndHost(t *testing.T) {
	eng, gw := setupGame(t, "r1", "민수", "영희", "철수")
	forceVote(eng, "r1", "c")
	eng.CastVote("r1", "a", "c")
	eng.CastVote("r1", "b", "c")
	eng.CastVote("r1", "c", "a")
	require.Len(t, updatesOf(gw, "result"), 1)

	eng.Restart("r1", "b")
	assert.Empty(t, updatesOf(gw, "restart"))
	require.Len(t, gw.broadcastsOf("liar-error"), 1)

	eng.Restart("r1", "a")
	restarts := updatesOf(gw, "restart")
	require.Len(t, restarts, 1)
	payload := restarts[0].Data.(map[string]any)
	assert.Equal(t, string(PhaseWaiting), payload["phase"])
	players := payload["players"].([]Participant)
	require.Len(t, players, 3)
	for _, p := range players {
		assert.False(t, p.Voted)
	}
	assert.True(t, players[0].IsHost)
}
