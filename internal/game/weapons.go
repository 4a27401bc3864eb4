package game

import (
	"arena-core/internal/game/vmath"
)

// weaponParams is the fixed per-weapon configuration. Fire delays live in the
// tunings so tune zones can override them per map region.
type weaponParams struct {
	Damage   int
	FullAuto bool
}

var weaponTable = map[WeaponKind]weaponParams{
	WeaponHammer:  {Damage: 3, FullAuto: true},
	WeaponGun:     {Damage: 1, FullAuto: false},
	WeaponShotgun: {Damage: 1, FullAuto: false},
	WeaponGrenade: {Damage: 6, FullAuto: true},
	WeaponLaser:   {Damage: 5, FullAuto: false},
}

// Shotgun spread: five pellets at fixed angle offsets. The outer pellets are
// slower, mixed by the shotgun_speeddiff tuning.
var shotgunSpreadAngles = [5]float64{-0.185, -0.070, 0, 0.070, 0.185}

// HammerReach is the melee sweep radius.
const HammerReach = PhysicalSize + PhysicalSize/2

// fireDelayMS resolves a weapon's fire delay from the tunings.
func fireDelayMS(w WeaponKind, tn *Tunings) int {
	switch w {
	case WeaponHammer:
		return tn.HammerFireDelayMS
	case WeaponGun:
		return tn.GunFireDelayMS
	case WeaponShotgun:
		return tn.ShotgunFireDelayMS
	case WeaponGrenade:
		return tn.GrenadeFireDelayMS
	case WeaponLaser:
		return tn.LaserFireDelayMS
	}
	return 125
}

// handleWeapons runs weapon switching, ammo regen and firing for one
// character.
func (w *World) handleWeapons(c *Character, tn *Tunings) {
	if wk, ok := c.diff.TakeWeaponReq(); ok {
		c.queueWeapon(WeaponKind(wk))
	}
	c.applyQueuedWeapon()

	if c.AttackRecoil > 0 {
		c.AttackRecoil--
	}

	// Gun ammo regenerates while holstered or active.
	if slot, ok := c.ReusableCore.Weapons[WeaponGun]; ok && slot.Ammo >= 0 && slot.Ammo < WeaponMaxAmmo {
		if slot.NextRegenTick == 0 {
			slot.NextRegenTick = w.tick + AmmoRegenTicks
		} else if w.tick >= slot.NextRegenTick {
			slot.Ammo++
			slot.NextRegenTick = w.tick + AmmoRegenTicks
		}
	}

	params := weaponTable[c.ActiveWeapon]
	firePressed := c.diff.TakeFire()
	fireHeld := c.Input.Input.Fire

	wantFire := firePressed || (params.FullAuto && fireHeld)
	if !wantFire || c.AttackRecoil > 0 {
		return
	}

	// An active ninja buff replaces weapon fire with the dash.
	if c.HasBuff(BuffNinja) {
		rc := c.ReusableCore
		rc.Ninja.DashTicks = NinjaDashTicks
		rc.Ninja.DashDir = c.cursorDir()
		for k := range rc.Interactions {
			delete(rc.Interactions, k)
		}
		c.AttackRecoil = FireDelayTicks(tn.HammerFireDelayMS) + NinjaDashTicks
		return
	}

	slot := c.ReusableCore.Weapons[c.ActiveWeapon]
	if slot == nil || slot.Ammo == 0 {
		return
	}

	dir := c.cursorDir()
	switch c.ActiveWeapon {
	case WeaponHammer:
		w.fireHammer(c, dir)
	case WeaponGun:
		w.fireProjectile(c, dir, WeaponGun, vmath.One, tn.GunSpeed, tn.GunCurvature, tn.GunLifetime, false)
	case WeaponShotgun:
		w.fireShotgun(c, dir, tn)
	case WeaponGrenade:
		w.fireProjectile(c, dir, WeaponGrenade, vmath.One, tn.GrenadeSpeed, tn.GrenadeCurvature, tn.GrenadeLifetime, true)
	case WeaponLaser:
		w.fireLaser(c, dir, tn)
	}

	if slot.Ammo > 0 {
		slot.Ammo--
	}
	c.AttackRecoil = FireDelayTicks(fireDelayMS(c.ActiveWeapon, tn))
}

// fireHammer sweeps the melee radius, damaging and knocking every target up.
func (w *World) fireHammer(c *Character, dir vmath.Vec2) {
	hit := false
	at := c.Core.Pos.Add(dir.Scale(PhysicalHalf))
	for _, id := range w.sortedCharacterIDs() {
		target := w.characters[id]
		if target.ID == c.ID || target.IsDead() || w.phased.Contains(target.ID) {
			continue
		}
		if target.Core.Pos.Distance(at) >= HammerReach {
			continue
		}
		hit = true
		// Upward knock plus a push away from the hammer.
		away := target.Core.Pos.Sub(c.Core.Pos).Normalize()
		force := vmath.V(away.X.Mul(vmath.FromFloat(2.5)), -vmath.FromFloat(5.0))
		w.damage(c, target, weaponTable[WeaponHammer].Damage, force, WeaponHammer)
		w.emit(WorldEvent{Kind: EventHammerHit, Pos: target.Core.Pos, Killer: c.PlayerID, Victim: target.PlayerID})
	}
	if !hit {
		w.emit(WorldEvent{Kind: EventHammerHit, Pos: at, Killer: c.PlayerID})
	}
}

// fireProjectile spawns one ballistic projectile.
func (w *World) fireProjectile(c *Character, dir vmath.Vec2, weapon WeaponKind,
	speedFactor, speed, curvature vmath.Fixed, lifetime int, explosive bool) *Projectile {

	p := &Projectile{
		ID:        w.gen.NextProjectileID(),
		Owner:     c.PlayerID,
		Weapon:    weapon,
		StartPos:  c.Core.Pos.Add(dir.Scale(PhysicalHalf)),
		Dir:       dir,
		Speed:     speed.Mul(speedFactor),
		Curvature: curvature,
		StartTick: w.tick,
		LifeTicks: lifetime,
		Explosive: explosive,
	}
	w.projectiles[p.ID] = p
	return p
}

// fireShotgun emits the five-pellet spread. The center pellet flies at full
// speed; the outer ones are mixed toward shotgun_speeddiff by their distance
// from the center.
func (w *World) fireShotgun(c *Character, dir vmath.Vec2, tn *Tunings) {
	base := dir.Angle()
	for i, offset := range shotgunSpreadAngles {
		// Mix factor 1-|i|/2 over centered index: 1.0 center, 0.0 edge.
		centered := i - 2
		if centered < 0 {
			centered = -centered
		}
		mix := vmath.One - vmath.Fixed(centered)<<vmath.FracBits/2
		speedFactor := vmath.Mix(tn.ShotgunSpeeddiff, vmath.One, mix)
		pdir := vmath.Direction(base + offset)
		w.fireProjectile(c, pdir, WeaponShotgun, speedFactor, tn.ShotgunSpeed, 0, tn.ShotgunLifetime, false)
	}
}

// fireLaser evaluates the beam immediately, bouncing off solid tiles up to
// the tuning's bounce budget, and keeps the entity for rendering.
func (w *World) fireLaser(c *Character, dir vmath.Vec2, tn *Tunings) {
	from := c.Core.Pos
	pos := from
	energy := tn.LaserReach
	bounces := 0

	for {
		end := pos.Add(dir.Scale(energy))
		if victim := w.characterAlongSegment(pos, end, c.ID); victim != nil {
			w.damage(c, victim, weaponTable[WeaponLaser].Damage, vmath.Vec2{}, WeaponLaser)
			pos = victim.Core.Pos
			break
		}
		hit, ok := w.grid.IntersectLine(pos, end)
		if !ok {
			pos = end
			break
		}
		if bounces >= tn.LaserBounceNum {
			pos = hit
			break
		}
		// Reflect on the dominant travel axis.
		energy -= pos.Distance(hit)
		pos = hit
		if dir.X.Abs() >= dir.Y.Abs() {
			dir.X = -dir.X
		} else {
			dir.Y = -dir.Y
		}
		bounces++
		if energy <= 0 {
			break
		}
	}

	l := &Laser{
		ID:        w.gen.NextLaserID(),
		Owner:     c.PlayerID,
		From:      from,
		Pos:       pos,
		StartTick: w.tick,
		EvalTick:  w.tick,
		Energy:    energy,
		Bounces:   bounces,
		Counter:   uint64(bounces),
	}
	w.lasers[l.ID] = l
}
