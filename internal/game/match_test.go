package game

import (
	"testing"
)

func sidedState(scoreLimit int64, timeLimitSecs, balanceSecs int) *State {
	opts := DefaultOptions()
	opts.Sided = true
	opts.ScoreLimit = scoreLimit
	opts.TimeLimitSecs = timeLimitSecs
	opts.AutoSideBalanceSecs = balanceSecs
	return newTestState(opts)
}

// TestMatchPauseResume halts the world while paused.
func TestMatchPauseResume(t *testing.T) {
	s := newTestState(DefaultOptions())
	_, c := join(t, s, "tee")
	st := s.stages[s.stage0]

	st.Match.Pause()
	if st.Match.State != MatchPaused {
		t.Fatal("not paused")
	}
	pos := c.Core.Pos
	s.Tick(TickOptions{})
	if c.Core.Pos != pos {
		t.Error("world advanced while paused")
	}

	st.Match.Unpause()
	if st.Match.State != MatchRunning {
		t.Error("not resumed")
	}
}

// TestScoreLimitEndsMatch reaches the score limit and expects game over,
// then a reset into a fresh round.
func TestScoreLimitEndsMatch(t *testing.T) {
	s := sidedState(2, 0, 0)
	_, a := join(t, s, "red")
	join(t, s, "blue")
	a.Side = SideRed
	w := stage0World(s)
	w.CharacterScores[a.ID] = 2
	a.Score = 2

	s.Tick(TickOptions{})
	st := s.stages[s.stage0]
	if st.Match.State != MatchGameOver {
		t.Fatalf("state = %v, want game over", st.Match.State)
	}

	// The reset timer starts a new round with cleared scores.
	for i := 0; i < gameOverResetTicks+2; i++ {
		s.Tick(TickOptions{})
	}
	if st.Match.State != MatchRunning {
		t.Fatalf("state after reset = %v", st.Match.State)
	}
	if w.CharacterScores[a.ID] != 0 {
		t.Error("scores not cleared on reset")
	}
}

// TestTieEntersSuddenDeath ties at the time limit, then ends on the first
// score.
func TestTieEntersSuddenDeath(t *testing.T) {
	s := sidedState(0, 1, 0) // one second time limit
	_, a := join(t, s, "red")
	_, b := join(t, s, "blue")
	a.Side, b.Side = SideRed, SideBlue
	st := s.stages[s.stage0]
	w := stage0World(s)

	for i := 0; i < TicksPerSecond+1; i++ {
		s.Tick(TickOptions{})
	}
	if st.Match.State != MatchSuddenDeath {
		t.Fatalf("state = %v, want sudden death", st.Match.State)
	}

	w.CharacterScores[a.ID]++
	s.Tick(TickOptions{})
	if st.Match.State != MatchGameOver {
		t.Fatalf("first score in sudden death must end the match, state = %v", st.Match.State)
	}
}

// TestSoloLeaderboard tracks the top two characters.
func TestSoloLeaderboard(t *testing.T) {
	s := newTestState(DefaultOptions())
	_, a := join(t, s, "first")
	_, b := join(t, s, "second")
	join(t, s, "third")
	w := stage0World(s)
	w.CharacterScores[a.ID] = 5
	w.CharacterScores[b.ID] = 3

	s.Tick(TickOptions{})
	lb := s.stages[s.stage0].Match.Leaderboard
	if lb[0] != a.ID || lb[1] != b.ID {
		t.Errorf("leaderboard = %v, want [%v %v]", lb, a.ID, b.ID)
	}
}

// TestAutoSideBalance forces reassignment after the imbalance threshold.
func TestAutoSideBalance(t *testing.T) {
	s := sidedState(0, 0, 1) // balance after one second
	ids := make([]*Character, 0, 4)
	for _, n := range []string{"a", "b", "c", "d"} {
		_, c := join(t, s, n)
		ids = append(ids, c)
	}
	// 3 red vs 1 blue.
	ids[0].Side, ids[1].Side, ids[2].Side = SideRed, SideRed, SideRed
	ids[3].Side = SideBlue

	for i := 0; i < TicksPerSecond+2; i++ {
		s.Tick(TickOptions{})
	}
	st := s.stages[s.stage0]
	if !st.Match.NeedsBalance() {
		t.Fatal("imbalance past the threshold must request balancing")
	}

	// A red respawn flips to the smaller side.
	w := stage0World(s)
	w.kill(ids[0], ids[0].PlayerID, WeaponNinja, true)
	for i := 0; i < TicksPerSecond; i++ {
		s.Tick(TickOptions{})
	}
	if ids[0].Side != SideBlue {
		t.Errorf("respawned side = %v, want blue", ids[0].Side)
	}
}

// TestSmallerSide picks the side with fewer characters for fresh joins.
func TestSmallerSide(t *testing.T) {
	s := sidedState(0, 0, 0)
	_, a := join(t, s, "a")
	first := a.Side
	_, b := join(t, s, "b")
	if b.Side == first {
		t.Errorf("second join landed on the same side (%v)", b.Side)
	}
}
