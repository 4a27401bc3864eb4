package game

import (
	"testing"

	"arena-core/internal/game/collision"
	"arena-core/internal/game/vmath"
	"arena-core/internal/input"
)

// flatGrid builds an open room with a floor, no pickups, no flags.
func flatGrid() *collision.Grid {
	g := collision.NewGrid(40, 20)
	for x := 1; x < 39; x++ {
		g.SetTile(x, 17, collision.Tile{Kind: collision.TileSolid})
	}
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(10, 16))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(20, 16))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(30, 16))
	g.AddSpawn(collision.SpawnRed, vmath.TileCenter(8, 16))
	g.AddSpawn(collision.SpawnBlue, vmath.TileCenter(32, 16))
	return g
}

func newTestState(opts Options) *State {
	return NewState(flatGrid(), NewTuneTable(DefaultTunings()), opts, 1)
}

// join adds a player and returns its character.
func join(t *testing.T, s *State, name string) (PlayerID, *Character) {
	t.Helper()
	pid := s.PlayerJoin(JoinInfo{Info: CharacterInfo{Name: name}})
	_, c, ok := s.characterOf(pid)
	if !ok {
		t.Fatalf("player %s has no character", name)
	}
	return pid, c
}

func stage0World(s *State) *World {
	return s.stages[s.stage0].World
}

// TestDamageOrdering verifies the exact armor-then-health decrement order.
func TestDamageOrdering(t *testing.T) {
	tests := []struct {
		name               string
		health, armor, dmg int
		wantHealth, wantArmor int
	}{
		{"armor absorbs single point", 10, 5, 1, 10, 4},
		{"one health then armor", 10, 5, 4, 9, 2},
		{"armor depleted spills to health", 10, 2, 8, 4, 0},
		{"overkill clamps at zero", 3, 0, 9, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(DefaultOptions())
			_, att := join(t, s, "attacker")
			_, vic := join(t, s, "victim")
			vic.Health = tt.health
			vic.Armor = tt.armor

			w := stage0World(s)
			w.damage(att, vic, tt.dmg, vmath.Vec2{}, WeaponGun)

			if vic.Health != tt.wantHealth || vic.Armor != tt.wantArmor {
				t.Errorf("after %d dmg: health=%d armor=%d, want %d/%d",
					tt.dmg, vic.Health, vic.Armor, tt.wantHealth, tt.wantArmor)
			}
			if vic.Health < 0 || vic.Health > MaxHealth || vic.Armor < 0 || vic.Armor > MaxArmor {
				t.Error("health/armor out of bounds")
			}
		})
	}
}

// TestFriendlyFireMatrix covers every attacker/victim side combination.
func TestFriendlyFireMatrix(t *testing.T) {
	tests := []struct {
		name         string
		friendlyFire bool
		attSide      Side
		vicSide      Side
		self         bool
		dmg          int
		want         int
	}{
		{"self damage halved", false, SideNone, SideNone, true, 6, 3},
		{"self damage floors at one", false, SideNone, SideNone, true, 1, 1},
		{"same side ff off", false, SideRed, SideRed, false, 6, 0},
		{"same side ff on halved", true, SideRed, SideRed, false, 6, 3},
		{"same side ff on floors at one", true, SideRed, SideRed, false, 1, 1},
		{"different sides full", false, SideRed, SideBlue, false, 6, 6},
		{"no side mode full", false, SideNone, SideNone, false, 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.FriendlyFire = tt.friendlyFire
			s := newTestState(opts)
			_, att := join(t, s, "attacker")
			vic := att
			if !tt.self {
				_, vic = join(t, s, "victim")
			}
			att.Side = tt.attSide
			vic.Side = tt.vicSide

			if got := stage0World(s).effectiveDamage(att, vic, tt.dmg); got != tt.want {
				t.Errorf("effective damage = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestRespawnCooldowns checks the exact dead phase durations.
func TestRespawnCooldowns(t *testing.T) {
	s := newTestState(DefaultOptions())
	killerID, killer := join(t, s, "killer")
	_, victim := join(t, s, "victim")
	w := stage0World(s)

	victim.Health = 1
	w.damage(killer, victim, 2, vmath.Vec2{}, WeaponGun)
	if !victim.IsDead() {
		t.Fatal("victim should be dead")
	}
	if victim.Phase.RespawnIn != TicksPerSecond/2 {
		t.Errorf("death respawn = %d ticks, want %d", victim.Phase.RespawnIn, TicksPerSecond/2)
	}
	if victim.Killer != killerID {
		t.Error("killer not recorded")
	}

	w.kill(killer, killerID, WeaponNinja, true)
	if killer.Phase.RespawnIn != TicksPerSecond/10 {
		t.Errorf("self-kill respawn = %d ticks, want %d", killer.Phase.RespawnIn, TicksPerSecond/10)
	}
}

// TestDeadCharactersArePhased verifies the phased set tracks the dead phase
// and respawn releases it.
func TestDeadCharactersArePhased(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "tee")
	w := stage0World(s)

	w.kill(c, pid, WeaponNinja, true)
	if !s.phased.Contains(c.ID) {
		t.Fatal("dead character missing from phased set")
	}

	// A dead character never moves.
	pos := c.Core.Pos
	for i := 0; i < 3; i++ {
		s.Tick(TickOptions{})
		if c.Phase.Kind == PhaseDead && c.Core.Pos != pos {
			t.Fatal("dead character moved")
		}
	}

	for i := 0; i < TicksPerSecond; i++ {
		s.Tick(TickOptions{})
	}
	if c.IsDead() || s.phased.Contains(c.ID) {
		t.Error("character should have respawned and left the phased set")
	}
	if c.Health != MaxHealth {
		t.Errorf("respawned with health %d", c.Health)
	}
}

// TestKillScoring checks kill and self-kill score deltas.
func TestKillScoring(t *testing.T) {
	s := newTestState(DefaultOptions())
	killerID, killer := join(t, s, "killer")
	_, victim := join(t, s, "victim")
	w := stage0World(s)

	victim.Health = 1
	w.damage(killer, victim, 2, vmath.Vec2{}, WeaponGun)
	if w.CharacterScores[killer.ID] != 1 {
		t.Errorf("killer score = %d, want 1", w.CharacterScores[killer.ID])
	}

	w.kill(killer, killerID, WeaponNinja, true)
	if w.CharacterScores[killer.ID] != 0 {
		t.Errorf("self-kill score = %d, want 0", w.CharacterScores[killer.ID])
	}
}

// TestNinjaDashDamagesOncePerTarget runs a full dash through a target and
// counts damage applications.
func TestNinjaDashDamagesOncePerTarget(t *testing.T) {
	s := newTestState(DefaultOptions())
	_, ninja := join(t, s, "ninja")
	_, target := join(t, s, "target")
	w := stage0World(s)

	// Park both in mid-air on top of each other so the dash sphere overlaps
	// for several ticks.
	ninja.Core.Pos = vmath.TileCenter(20, 5)
	target.Core.Pos = vmath.TileCenter(20, 5).Add(vmath.V(100, 0))
	target.Health = MaxHealth
	target.Armor = 0

	ninja.ReusableCore.Buffs[BuffNinja] = NinjaBuffTicks
	ninja.ReusableCore.Ninja = NinjaState{
		BuffTicks: NinjaBuffTicks,
		DashTicks: NinjaDashTicks,
		DashDir:   vmath.V(vmath.One, 0),
	}

	for i := 0; i < NinjaDashTicks; i++ {
		w.handleBuffsAndDebuffs(ninja, s.tunes.Zone(0))
	}

	// 9 damage on a 10/0 character: health loses 1, armor absorbs nothing,
	// health loses the remaining 8. Exactly once despite five dash ticks.
	if target.IsDead() {
		t.Fatal("dash must damage a full-health target exactly once, not kill it")
	}
	if target.Health != 1 {
		t.Errorf("target health = %d, want 1", target.Health)
	}
	if len(ninja.ReusableCore.Interactions) != 1 {
		t.Errorf("interaction set size = %d, want 1", len(ninja.ReusableCore.Interactions))
	}
}

// TestHammerSweep hits targets inside 1.5x physical size and knocks them up.
func TestHammerSweep(t *testing.T) {
	s := newTestState(DefaultOptions())
	_, att := join(t, s, "hammerer")
	_, near := join(t, s, "near")
	_, far := join(t, s, "far")
	w := stage0World(s)

	att.Core.Pos = vmath.TileCenter(20, 5)
	near.Core.Pos = att.Core.Pos.Add(vmath.V(PhysicalSize, 0))
	far.Core.Pos = att.Core.Pos.Add(vmath.V(PhysicalSize*4, 0))
	near.Health, far.Health = MaxHealth, MaxHealth

	w.fireHammer(att, vmath.V(vmath.One, 0))

	if near.Health != MaxHealth-weaponTable[WeaponHammer].Damage {
		t.Errorf("near target health = %d", near.Health)
	}
	if near.Core.Vel.Y >= 0 {
		t.Error("hammer should knock the target upward")
	}
	if far.Health != MaxHealth {
		t.Error("far target must be out of reach")
	}
}

// TestHookPartnerQuantizeSeparation forbids identical end-of-tick positions
// for hooked pairs.
func TestHookPartnerQuantizeSeparation(t *testing.T) {
	s := newTestState(DefaultOptions())
	_, a := join(t, s, "a")
	_, b := join(t, s, "b")
	w := stage0World(s)

	w.Hooked.Attach(a.ID, b.ID)
	b.Core.Pos = a.Core.Pos
	w.physicsQuantize(a)
	if a.Core.Pos == b.Core.Pos {
		t.Error("hook partners share an identical quantized position")
	}
}

// TestFrozenCharacterCannotAct verifies the freeze debuff gates movement and
// weapons.
func TestFrozenCharacterCannotAct(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "frozen")
	w := stage0World(s)
	_ = w

	c.ReusableCore.Debuffs[DebuffFreeze] = 10 * TicksPerSecond
	s.SetPlayerInputs(map[PlayerID]SetInput{
		pid: {Input: input.CharacterInput{Dir: 1, Fire: true}, Diff: pressAll()},
	})
	before := len(stage0World(s).projectiles)
	s.Tick(TickOptions{})

	if c.Core.Direction != 0 {
		t.Error("frozen character applied a movement direction")
	}
	if len(stage0World(s).projectiles) != before {
		t.Error("frozen character fired")
	}
}

// pressAll fabricates a diff with every edge set.
func pressAll() input.ConsumableDiff {
	var st input.State
	d, _ := st.TryOverwrite(input.CharacterInput{Fire: true, Jump: true, Hook: true}, 1, true)
	return d
}
