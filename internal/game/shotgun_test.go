package game

import (
	"math"
	"sort"
	"testing"

	"arena-core/internal/game/vmath"
	"arena-core/internal/input"
)

// TestShotgunSpreadDeterminism fires the shotgun with uniform tunings
// {shotgun_speeddiff: 0.4, shotgun_lifetime: 20} at cursor (100, 0) and
// checks the exact five-pellet spread.
func TestShotgunSpreadDeterminism(t *testing.T) {
	tunes := DefaultTunings()
	tunes.ShotgunSpeeddiff = vmath.FromFloat(0.4)
	tunes.ShotgunLifetime = 20
	s := NewState(flatGrid(), NewTuneTable(tunes), DefaultOptions(), 1)

	pid, c := join(t, s, "gunner")
	c.Core.Pos = vmath.TileCenter(20, 5)
	c.GiveWeapon(WeaponShotgun, WeaponMaxAmmo)
	c.ActiveWeapon = WeaponShotgun

	s.SetPlayerInputs(map[PlayerID]SetInput{
		pid: {Input: input.CharacterInput{Fire: true, CursorX: 100, CursorY: 0}, Diff: pressAll()},
	})
	s.Tick(TickOptions{})

	w := stage0World(s)
	if len(w.projectiles) != 5 {
		t.Fatalf("projectile count = %d, want exactly 5", len(w.projectiles))
	}

	pellets := make([]*Projectile, 0, 5)
	for _, p := range w.projectiles {
		pellets = append(pellets, p)
	}
	sort.Slice(pellets, func(i, j int) bool {
		return pellets[i].Dir.Angle() < pellets[j].Dir.Angle()
	})

	wantAngles := []float64{-0.185, -0.070, 0, 0.070, 0.185}
	for i, p := range pellets {
		got := p.Dir.Angle()
		if math.Abs(got-wantAngles[i]) > 0.01 {
			t.Errorf("pellet %d: angle %.4f, want %.3f", i, got, wantAngles[i])
		}
	}

	// Speed mix: center pellet at full speed, outermost at the speeddiff
	// factor.
	center := pellets[2].Speed
	outer := pellets[0].Speed
	if center != tunes.ShotgunSpeed {
		t.Errorf("center pellet speed = %d, want %d", center, tunes.ShotgunSpeed)
	}
	wantOuter := tunes.ShotgunSpeed.Mul(vmath.FromFloat(0.4))
	if d := outer - wantOuter; d < -2 || d > 2 {
		t.Errorf("outer pellet speed = %d, want ~%d", outer, wantOuter)
	}
	if pellets[4].Speed != pellets[0].Speed {
		t.Error("spread speeds must be symmetric")
	}

	// Ammo consumed once for the whole spread; recoil from the tunings.
	if got := c.ReusableCore.Weapons[WeaponShotgun].Ammo; got != WeaponMaxAmmo-1 {
		t.Errorf("ammo = %d, want %d", got, WeaponMaxAmmo-1)
	}
	if c.AttackRecoil != FireDelayTicks(tunes.ShotgunFireDelayMS)-1 && c.AttackRecoil != FireDelayTicks(tunes.ShotgunFireDelayMS) {
		t.Errorf("recoil = %d ticks", c.AttackRecoil)
	}
}

// TestRecoilBlocksFire verifies no weapon discharges while recoil is
// pending.
func TestRecoilBlocksFire(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "gunner")
	c.Core.Pos = vmath.TileCenter(20, 5)
	c.AttackRecoil = 10

	s.SetPlayerInputs(map[PlayerID]SetInput{
		pid: {Input: input.CharacterInput{Fire: true, CursorX: 100}, Diff: pressAll()},
	})
	s.Tick(TickOptions{})

	if len(stage0World(s).projectiles) != 0 {
		t.Fatal("weapon fired during recoil")
	}
	if c.ReusableCore.Weapons[WeaponGun].Ammo != WeaponMaxAmmo {
		t.Error("ammo consumed during recoil")
	}
}

// TestGunAmmoConsumptionAndRegen fires the gun and waits for a regen tick.
func TestGunAmmoConsumptionAndRegen(t *testing.T) {
	s := newTestState(DefaultOptions())
	pid, c := join(t, s, "gunner")
	c.Core.Pos = vmath.TileCenter(20, 3)

	s.SetPlayerInputs(map[PlayerID]SetInput{
		pid: {Input: input.CharacterInput{Fire: true, CursorX: 100}, Diff: pressAll()},
	})
	s.Tick(TickOptions{})
	if got := c.ReusableCore.Weapons[WeaponGun].Ammo; got != WeaponMaxAmmo-1 {
		t.Fatalf("ammo after shot = %d", got)
	}
	for i := 0; i < AmmoRegenTicks+2; i++ {
		s.Tick(TickOptions{})
	}
	if got := c.ReusableCore.Weapons[WeaponGun].Ammo; got != WeaponMaxAmmo {
		t.Errorf("ammo after regen = %d, want %d", got, WeaponMaxAmmo)
	}
}

// TestQueuedWeaponRequiresOwnership rejects switching to an unowned weapon.
func TestQueuedWeaponRequiresOwnership(t *testing.T) {
	s := newTestState(DefaultOptions())
	_, c := join(t, s, "tee")

	c.queueWeapon(WeaponLaser) // not owned
	if c.QueuedWeapon != nil {
		t.Error("queued an unowned weapon")
	}
	c.GiveWeapon(WeaponLaser, 5)
	c.queueWeapon(WeaponLaser)
	if c.QueuedWeapon == nil || *c.QueuedWeapon != WeaponLaser {
		t.Error("owned weapon not queued")
	}
	c.applyQueuedWeapon()
	if c.ActiveWeapon != WeaponLaser || c.PrevWeapon != WeaponGun {
		t.Errorf("switch failed: active=%v prev=%v", c.ActiveWeapon, c.PrevWeapon)
	}
}
