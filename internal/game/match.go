package game

import "sort"

// MatchState is the match lifecycle state.
type MatchState uint8

const (
	MatchRunning MatchState = iota
	MatchPaused
	MatchSuddenDeath
	MatchGameOver
)

func (s MatchState) String() string {
	switch s {
	case MatchPaused:
		return "paused"
	case MatchSuddenDeath:
		return "sudden-death"
	case MatchGameOver:
		return "game-over"
	default:
		return "running"
	}
}

// gameOverResetTicks is how long the scoreboard stays up before a new round.
const gameOverResetTicks = 10 * TicksPerSecond

// MatchManager drives the match state machine of one stage: score and time
// limits, sudden death, round resets and side balancing.
type MatchManager struct {
	State MatchState
	Sided bool

	// SideScores is indexed by Side-1 (red, blue) in sided mode.
	SideScores [2]int64
	// Leaderboard is the top-2 characters in solo mode, recomputed each
	// tick.
	Leaderboard [2]CharacterID

	ScoreLimit       int64
	TimeLimitTicks   uint64
	AutoBalanceTicks uint64

	startTick      uint64
	gameOverAt     uint64
	sdEntryScores  [2]int64
	imbalanceSince uint64
	// forceBalance asks the world to reassign sides at the next respawns.
	forceBalance bool
}

// NewMatchManager creates a manager for a fresh running round; its start
// tick is zero.
func NewMatchManager(sided bool, scoreLimit int64, timeLimitTicks, autoBalanceTicks uint64) *MatchManager {
	return &MatchManager{
		State:            MatchRunning,
		Sided:            sided,
		ScoreLimit:       scoreLimit,
		TimeLimitTicks:   timeLimitTicks,
		AutoBalanceTicks: autoBalanceTicks,
	}
}

// Pause halts the simulation of the stage.
func (m *MatchManager) Pause() {
	if m.State == MatchRunning || m.State == MatchSuddenDeath {
		m.State = MatchPaused
	}
}

// Unpause resumes a paused match.
func (m *MatchManager) Unpause() {
	if m.State == MatchPaused {
		m.State = MatchRunning
	}
}

// Active reports whether the world should simulate this tick.
func (m *MatchManager) Active() bool {
	return m.State == MatchRunning || m.State == MatchSuddenDeath
}

// NeedsBalance reports whether respawning characters should be reassigned to
// the smaller side.
func (m *MatchManager) NeedsBalance() bool { return m.forceBalance }

// BalanceApplied clears the pending balance request once sides are even.
func (m *MatchManager) BalanceApplied() { m.forceBalance = false }

// Tick advances the match state machine against the world's current scores.
func (m *MatchManager) Tick(w *World, tick uint64) {
	switch m.State {
	case MatchPaused:
		return

	case MatchGameOver:
		if tick >= m.gameOverAt+gameOverResetTicks {
			m.reset(w, tick)
		}
		return
	}

	if m.Sided {
		m.SideScores = m.computeSideScores(w)
	} else {
		m.Leaderboard = m.computeLeaderboard(w)
	}

	if m.State == MatchSuddenDeath {
		// First score after the tie ends the round.
		if m.computeSideScores(w) != m.sdEntryScores {
			m.gameOver(tick)
		}
		return
	}

	m.checkBalance(w, tick)

	scoreHit := false
	if m.ScoreLimit > 0 {
		if m.Sided {
			scoreHit = m.SideScores[0] >= m.ScoreLimit || m.SideScores[1] >= m.ScoreLimit
		} else {
			if lead, ok := w.Character(m.Leaderboard[0]); ok {
				scoreHit = w.CharacterScores[lead.ID] >= m.ScoreLimit
			}
		}
	}
	timeHit := m.TimeLimitTicks > 0 && tick-m.startTick >= m.TimeLimitTicks

	if !scoreHit && !timeHit {
		return
	}
	if m.Sided && m.SideScores[0] == m.SideScores[1] {
		m.State = MatchSuddenDeath
		m.sdEntryScores = m.SideScores
		return
	}
	m.gameOver(tick)
}

func (m *MatchManager) gameOver(tick uint64) {
	m.State = MatchGameOver
	m.gameOverAt = tick
}

// reset starts a new round: scores cleared, everyone respawned.
func (m *MatchManager) reset(w *World, tick uint64) {
	m.State = MatchRunning
	m.startTick = tick
	m.SideScores = [2]int64{}
	m.sdEntryScores = [2]int64{}
	m.imbalanceSince = 0
	for id := range w.CharacterScores {
		w.CharacterScores[id] = 0
	}
	for _, cid := range w.sortedCharacterIDs() {
		c := w.characters[cid]
		c.Score = 0
		if !c.IsDead() {
			c.Phase = Phase{Kind: PhaseDead, RespawnIn: 1}
			w.phased.acquire(c.ID)
		} else {
			c.Phase.RespawnIn = 1
		}
	}
}

// computeSideScores sums character scores per side.
func (m *MatchManager) computeSideScores(w *World) [2]int64 {
	var scores [2]int64
	for id, score := range w.CharacterScores {
		c, ok := w.characters[id]
		if !ok {
			continue
		}
		switch c.Side {
		case SideRed:
			scores[0] += score
		case SideBlue:
			scores[1] += score
		}
	}
	return scores
}

// computeLeaderboard returns the two highest-scoring characters, ties broken
// by creation order.
func (m *MatchManager) computeLeaderboard(w *World) [2]CharacterID {
	ids := w.sortedCharacterIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return w.CharacterScores[ids[i]] > w.CharacterScores[ids[j]]
	})
	var top [2]CharacterID
	for i := 0; i < len(ids) && i < 2; i++ {
		top[i] = ids[i]
	}
	return top
}

// checkBalance watches the side counts and requests reassignment once the
// imbalance persisted past the threshold.
func (m *MatchManager) checkBalance(w *World, tick uint64) {
	if !m.Sided || m.AutoBalanceTicks == 0 {
		return
	}
	var red, blue int
	for _, c := range w.characters {
		switch c.Side {
		case SideRed:
			red++
		case SideBlue:
			blue++
		}
	}
	diff := red - blue
	if diff < 0 {
		diff = -diff
	}
	if diff <= 1 {
		m.imbalanceSince = 0
		m.forceBalance = false
		return
	}
	if m.imbalanceSince == 0 {
		m.imbalanceSince = tick
		return
	}
	if tick-m.imbalanceSince >= m.AutoBalanceTicks {
		m.forceBalance = true
	}
}

// SmallerSide returns the side with fewer characters.
func (m *MatchManager) SmallerSide(w *World) Side {
	var red, blue int
	for _, c := range w.characters {
		switch c.Side {
		case SideRed:
			red++
		case SideBlue:
			blue++
		}
	}
	if red > blue {
		return SideBlue
	}
	return SideRed
}
