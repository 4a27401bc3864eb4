package game

import "arena-core/internal/game/vmath"

// Projectile is a ballistic entity spawned by gun, shotgun or grenade fire.
// Its path is parametric over the spawn state so prediction and the server
// compute identical positions.
type Projectile struct {
	ID      ProjectileID
	Owner   PlayerID
	Weapon  WeaponKind
	StartPos vmath.Vec2
	Dir      vmath.Vec2
	// Speed is the distance per tick along the unit Dir, with any pellet
	// speed factor already applied; PosAt scales Dir by it.
	Speed     vmath.Fixed
	Curvature vmath.Fixed
	StartTick uint64
	LifeTicks int
	// Explosive projectiles detonate on impact with radius damage.
	Explosive bool
	// Counter is the non-linear event counter, bumped on bounce/explode.
	Counter uint64
}

// PosAt evaluates the projectile position after n ticks of flight.
func (p *Projectile) PosAt(n int) vmath.Vec2 {
	step := p.Dir.Scale(p.Speed)
	pos := p.StartPos.Add(step.Scale(vmath.Fixed(n) << vmath.FracBits))
	// Curvature pulls the path down quadratically.
	fall := p.Curvature.Mul(vmath.Fixed(n*n) << vmath.FracBits)
	pos.Y += fall
	return pos
}

// Laser is a beam entity. Its whole bounce path is evaluated and damage is
// applied on the spawn tick; it then persists a few ticks for rendering and
// is not re-evaluated.
type Laser struct {
	ID        LaserID
	Owner     PlayerID
	From      vmath.Vec2
	Pos       vmath.Vec2 // current beam end
	StartTick uint64
	EvalTick  uint64
	Energy    vmath.Fixed
	Bounces   int
	// Counter bumps on each bounce so interpolation snaps the beam.
	Counter uint64
}

// FlagState is where a flag currently is.
type FlagState uint8

const (
	FlagAtStand FlagState = iota
	FlagCarried
	FlagDropped
)

// Flag is one of the two persistent match flags.
type Flag struct {
	ID       FlagID
	Side     Side
	Stand    vmath.Vec2
	Pos      vmath.Vec2
	Vel      vmath.Vec2
	State    FlagState
	Carrier  CharacterID
	DropTick uint64
	// Counter bumps on return/capture teleports.
	Counter uint64
}

// Flag timing and geometry.
const (
	FlagPhysSize       vmath.Fixed = 112
	FlagReturnTicks                = 30 * TicksPerSecond
	FlagGrabRadius     vmath.Fixed = PhysicalSize + FlagPhysSize
	FlagCaptureScore               = 100
)

// PickupKind is what a pickup grants.
type PickupKind uint8

const (
	PickupHeart PickupKind = iota
	PickupShield
	PickupShotgun
	PickupGrenade
	PickupLaser
	PickupNinja
)

// Pickup respawn delays in ticks.
const (
	PickupRespawnTicks      = 15 * TicksPerSecond
	PickupNinjaRespawnTicks = 90 * TicksPerSecond
	PickupRadius            vmath.Fixed = PhysicalSize
)

// Pickup is a collectable world item. Collected pickups stay in the world
// with a respawn countdown instead of being destroyed.
type Pickup struct {
	ID        PickupID
	Kind      PickupKind
	Pos       vmath.Vec2
	RespawnIn int // 0 = available
	// Counter bumps on collection so interpolation snaps the respawn pop.
	Counter uint64
}

// apply grants the pickup's effect. Returns false when the character cannot
// use it (full health/armor), leaving the pickup in place.
func (p *Pickup) apply(c *Character) bool {
	switch p.Kind {
	case PickupHeart:
		if c.Health >= MaxHealth {
			return false
		}
		c.Health++
		return true
	case PickupShield:
		if c.Armor >= MaxArmor {
			return false
		}
		c.Armor++
		return true
	case PickupShotgun:
		c.GiveWeapon(WeaponShotgun, WeaponMaxAmmo)
		return true
	case PickupGrenade:
		c.GiveWeapon(WeaponGrenade, WeaponMaxAmmo)
		return true
	case PickupLaser:
		c.GiveWeapon(WeaponLaser, WeaponMaxAmmo)
		return true
	case PickupNinja:
		c.ReusableCore.Buffs[BuffNinja] = NinjaBuffTicks
		c.ReusableCore.Ninja = NinjaState{BuffTicks: NinjaBuffTicks}
		return true
	}
	return false
}

func (p *Pickup) respawnDelay() int {
	if p.Kind == PickupNinja {
		return PickupNinjaRespawnTicks
	}
	return PickupRespawnTicks
}
