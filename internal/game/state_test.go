package game

import (
	"bytes"
	"testing"

	"arena-core/internal/game/collision"
	"arena-core/internal/game/vmath"
	"arena-core/internal/input"
)

// TestPlayerJoinFillsStageThenSpectators joins past the ingame cap.
func TestPlayerJoinFillsStageThenSpectators(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIngame = 2
	s := newTestState(opts)

	p1 := s.PlayerJoin(JoinInfo{Info: CharacterInfo{Name: "a"}})
	p2 := s.PlayerJoin(JoinInfo{Info: CharacterInfo{Name: "b"}})
	p3 := s.PlayerJoin(JoinInfo{Info: CharacterInfo{Name: "c"}})

	if !s.players.Contains(p1) || !s.players.Contains(p2) {
		t.Error("first two players should be ingame")
	}
	if !s.spectators.Contains(p3) {
		t.Error("third player should spectate")
	}
	if stage0World(s).CharacterCount() != 2 {
		t.Errorf("stage 0 has %d characters, want 2", stage0World(s).CharacterCount())
	}
}

// TestPlayerDropIdempotent drops twice without effect the second time.
func TestPlayerDropIdempotent(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, _ := join(t, s, "tee")

	s.PlayerDrop(pid, DropDisconnect)
	if s.players.Contains(pid) {
		t.Fatal("player still indexed after drop")
	}
	s.PlayerDrop(pid, DropDisconnect) // must not panic or emit
	evs := s.EventsFor(EventScope{})
	left := 0
	for _, list := range evs {
		for _, ev := range list {
			if ev.Kind == EventPlayerLeft {
				left++
			}
		}
	}
	if left != 1 {
		t.Errorf("PlayerLeft emitted %d times, want 1", left)
	}
}

// TestInfoVersionGuard ignores reordered character info updates.
func TestInfoVersionGuard(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "old")

	s.TryOverwriteCharacterInfo(pid, CharacterInfo{Name: "newer"}, 5)
	if c.Info.Name != "newer" {
		t.Fatalf("info not applied: %q", c.Info.Name)
	}
	s.TryOverwriteCharacterInfo(pid, CharacterInfo{Name: "stale"}, 3)
	if c.Info.Name != "newer" {
		t.Error("older version overwrote newer info")
	}
}

// TestSnapshotRoundTripSameState re-applies a snapshot onto its source state
// and expects byte-identical re-serialization.
func TestSnapshotRoundTripSameState(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "alpha")
	join(t, s, "beta")
	c.Armor = 5

	// Advance into an interesting mid-game state.
	s.SetPlayerInputs(map[PlayerID]SetInput{
		pid: {Input: input.CharacterInput{Dir: 1, Jump: true, CursorX: 300}, Diff: pressAll()},
	})
	for i := 0; i < 20; i++ {
		s.Tick(TickOptions{})
	}

	scope := SnapshotScope{ForPlayers: map[PlayerID]struct{}{pid: {}}}
	snap1 := s.SnapshotFor(scope)

	if _, err := s.BuildFromSnapshot(snap1); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	snap2 := s.SnapshotFor(scope)
	if !bytes.Equal(snap1, snap2) {
		t.Fatalf("rebuild is not byte-stable: %d vs %d bytes", len(snap1), len(snap2))
	}
}

// TestSnapshotRoundTripFreshState rebuilds into a brand-new state and
// expects identical serialization, preserving every entity id.
func TestSnapshotRoundTripFreshState(t *testing.T) {
	src := newTestState(DefaultOptions())
	pid, _ := join(t, src, "alpha")
	join(t, src, "beta")
	for i := 0; i < 10; i++ {
		src.Tick(TickOptions{})
	}
	scope := SnapshotScope{}
	snap1 := src.SnapshotFor(scope)

	dst := newTestState(DefaultOptions())
	local, err := dst.BuildFromSnapshot(snap1)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(local) != 0 {
		t.Errorf("everything scope carries no local hints, got %d", len(local))
	}
	if !bytes.Equal(snap1, dst.SnapshotFor(scope)) {
		t.Fatal("fresh-state rebuild serializes differently")
	}
	if !dst.players.Contains(pid) {
		t.Error("player index not rebuilt")
	}
}

// TestSnapshotLocalHints returns the scope players from the rebuild.
func TestSnapshotLocalHints(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, _ := join(t, s, "hinted")

	snap := s.SnapshotFor(SnapshotScope{ForPlayers: map[PlayerID]struct{}{pid: {}}})
	dst := newTestState(DefaultOptions())
	local, err := dst.BuildFromSnapshot(snap)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, ok := local[pid]; !ok || len(local) != 1 {
		t.Errorf("local hints = %v, want {%v}", local, pid)
	}
}

// TestPredictionTickIdempotent is the instant-input law: a prediction tick
// followed by a rebuild from the saved snapshot restores the world exactly.
func TestPredictionTickIdempotent(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, _ := join(t, s, "pred")
	join(t, s, "other")

	s.SetPlayerInputs(map[PlayerID]SetInput{
		pid: {Input: input.CharacterInput{Dir: 1, Fire: true, CursorX: 500}, Diff: pressAll()},
	})
	for i := 0; i < 5; i++ {
		s.Tick(TickOptions{})
	}

	scope := SnapshotScope{ForPlayers: map[PlayerID]struct{}{pid: {}}}
	saved := s.SnapshotFor(scope)

	// Predict three times in a row with a restore in between, as the
	// client's frame loop does.
	for round := 0; round < 3; round++ {
		s.Tick(TickOptions{IsFutureTickPrediction: true})
		if _, err := s.BuildFromSnapshot(saved); err != nil {
			t.Fatalf("restore: %v", err)
		}
		after := s.SnapshotFor(scope)
		if !bytes.Equal(saved, after) {
			t.Fatalf("round %d: prediction is not idempotent", round)
		}
	}
}

// TestPredictionSuppressesEvents ensures future-tick prediction emits no
// world events.
func TestPredictionSuppressesEvents(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "pred")
	s.EventsFor(EventScope{}) // drain the join events

	// Arrange a guaranteed event: character dies on the next tick.
	c.Health = 1
	c.Core.Pos = vmath.TileCenter(2, 2)
	w := stage0World(s)
	w.grid.SetTile(2, 2, collision.Tile{Kind: collision.TileDeath})
	_ = pid

	s.Tick(TickOptions{IsFutureTickPrediction: true})
	if evs := s.EventsFor(EventScope{}); len(evs) != 0 {
		t.Fatalf("prediction tick emitted events: %v", evs)
	}
	if !c.IsDead() {
		t.Fatal("prediction tick must still simulate (death expected)")
	}
}

// TestPrevBuildEmitsNoEvents confirms the open question: rebuilding the
// previous world never emits events.
func TestPrevBuildEmitsNoEvents(t *testing.T) {
	s := newTestState(DefaultOptions())
	join(t, s, "a")
	snap := s.SnapshotFor(SnapshotScope{})
	s.EventsFor(EventScope{})

	if err := s.BuildFromSnapshotForPrev(snap); err != nil {
		t.Fatalf("prev build: %v", err)
	}
	if evs := s.EventsFor(EventScope{}); len(evs) != 0 {
		t.Fatalf("prev build emitted events: %v", evs)
	}
	if s.PrevView() == nil {
		t.Fatal("prev view not stored")
	}
}

// TestSnapshotParseFailure returns a typed error on garbage.
func TestSnapshotParseFailure(t *testing.T) {
	s := newTestState(DefaultOptions())
	if _, err := s.BuildFromSnapshot([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected parse error")
	}
}

// TestOwnStageLifecycle creates a stage on demand and destroys it once
// empty; stage 0 survives.
func TestOwnStageLifecycle(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, _ := join(t, s, "solo")

	s.ClientCommand(pid, ClientCmd{Kind: CmdJoinStage, OwnStage: true, StageName: "myroom"})
	if len(s.stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(s.stages))
	}

	s.ClientCommand(pid, ClientCmd{Kind: CmdJoinStage}) // back to default
	if len(s.stages) != 1 {
		t.Errorf("empty own stage not destroyed, stages = %d", len(s.stages))
	}
	if _, ok := s.stages[s.stage0]; !ok {
		t.Error("stage 0 must survive")
	}
}

// TestJoinSpectatorAndBack moves a player out of and back into the world.
func TestJoinSpectatorAndBack(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, _ := join(t, s, "spec")

	s.ClientCommand(pid, ClientCmd{Kind: CmdJoinSpectator})
	if !s.spectators.Contains(pid) || s.players.Contains(pid) {
		t.Fatal("player should be spectating")
	}

	s.ClientCommand(pid, ClientCmd{Kind: CmdJoinStage})
	if s.spectators.Contains(pid) || !s.players.Contains(pid) {
		t.Fatal("player should be back ingame")
	}
	if info, _ := s.InfoOf(pid); info.Name != "spec" {
		t.Errorf("identity lost across spectate: %q", info.Name)
	}
}

// TestRconUnauthorized returns rejection text, not execution.
func TestRconUnauthorized(t *testing.T) {
	s := newTestState(DefaultOptions())
	out := s.RconCommand(nil, 0, []string{"cheats.all_weapons"})
	if len(out) != 1 {
		t.Fatalf("out = %v", out)
	}
	if out[0] == "armed 0 characters" {
		t.Error("unauthorized command executed")
	}
}

// TestVoteCommandFollowUps returns the expected server actions.
func TestVoteCommandFollowUps(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, _ := join(t, s, "victim")

	fu := s.VoteCommand(VoteCmd{Kind: VoteKickPlayer, Target: pid})
	if len(fu) != 1 || fu[0].Kind != FollowKickPlayer || fu[0].Target != pid {
		t.Errorf("kick follow-up = %+v", fu)
	}

	fu = s.VoteCommand(VoteCmd{Kind: VoteMap, Map: "ctf1"})
	if len(fu) != 1 || fu[0].Kind != FollowLoadMap || fu[0].Map != "ctf1" {
		t.Errorf("map follow-up = %+v", fu)
	}

	fu = s.VoteCommand(VoteCmd{Kind: VoteSpecPlayer, Target: pid})
	if len(fu) != 0 {
		t.Errorf("spec follow-up = %+v", fu)
	}
	if !s.spectators.Contains(pid) {
		t.Error("spec vote did not move the player")
	}
}
