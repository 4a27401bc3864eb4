package game

// Stage is an isolated game world within a server. Stage 0 exists for the
// lifetime of the game; other stages are created on demand and destroyed once
// no player character lives in them.
type Stage struct {
	ID    StageID
	Name  string
	Color [3]uint8

	World  *World
	Match  *MatchManager
	events *eventBuffer
}

func newStage(s *State, id StageID, name string, color [3]uint8) *Stage {
	st := &Stage{
		ID:     id,
		Name:   name,
		Color:  color,
		events: &eventBuffer{},
	}
	st.World = newWorld(id, s.gen, s.grid, s.tunes, s.players, s.phased, st.events, s.nextEventID)
	st.World.friendlyFire = s.opts.FriendlyFire
	st.Match = NewMatchManager(
		s.opts.Sided,
		s.opts.ScoreLimit,
		uint64(s.opts.TimeLimitSecs)*TicksPerSecond,
		uint64(s.opts.AutoSideBalanceSecs)*TicksPerSecond,
	)
	st.World.balance = func(c *Character) {
		if !st.Match.NeedsBalance() || c.Side == SideNone {
			return
		}
		smaller := st.Match.SmallerSide(st.World)
		if c.Side != smaller {
			c.Side = smaller
			st.Match.BalanceApplied()
		}
	}
	return st
}

// Tick advances the match manager and, while the match is active, the world.
func (st *Stage) Tick(tick uint64) {
	st.Match.Tick(st.World, tick)
	if st.Match.Active() {
		st.World.Tick(tick)
	}
}
