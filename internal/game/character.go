package game

import (
	"arena-core/internal/game/vmath"
	"arena-core/internal/input"
)

// Side is the team affiliation in sided game modes.
type Side uint8

const (
	SideNone Side = iota
	SideRed
	SideBlue
)

func (s Side) String() string {
	switch s {
	case SideRed:
		return "red"
	case SideBlue:
		return "blue"
	default:
		return "none"
	}
}

// Eye is the rendered eye state of a character.
type Eye uint8

const (
	EyeNormal Eye = iota
	EyePain
	EyeHappy
	EyeSurprised
	EyeAngry
	EyeBlink
)

// WeaponKind identifies a weapon. The order matches the input weapon slots.
type WeaponKind uint8

const (
	WeaponHammer WeaponKind = iota
	WeaponGun
	WeaponShotgun
	WeaponGrenade
	WeaponLaser
	weaponKindCount
	// WeaponNinja only appears as a kill cause, never as a slot.
	WeaponNinja WeaponKind = 0xff
)

// Character size and health constants.
const (
	// PhysicalSize is the character box edge in fixed-point units.
	PhysicalSize vmath.Fixed = 224 // 0.875 tiles
	PhysicalHalf vmath.Fixed = PhysicalSize / 2

	MaxHealth = 10
	MaxArmor  = 10

	// Respawn cooldowns in ticks.
	RespawnTicksDeath    = TicksPerSecond / 2
	RespawnTicksSelfKill = TicksPerSecond / 10

	// Eye state reset cooldown.
	eyeTicksDefault = 2 * TicksPerSecond

	// Ninja dash parameters: 50 px/tick (32 px tiles) over 5 ticks.
	NinjaDashVelocity vmath.Fixed = 50 * vmath.UnitsPerTile / 32
	NinjaDashTicks                = 5
	NinjaDamage                   = 9
	NinjaBuffTicks                = 15 * TicksPerSecond

	// Ammo handling.
	WeaponMaxAmmo   = 10
	AmmoRegenTicks  = TicksPerSecond / 2 // gun only
	jumpAirMax      = 2
)

// CharacterInfo is the player-supplied identity rendered over a character.
type CharacterInfo struct {
	Name string
	Clan string
	Skin string
	Eye  Eye
}

// HookState is the lifecycle of a character's hook.
type HookState uint8

const (
	HookIdle HookState = iota
	HookFlying
	HookGrabbedTile
	HookGrabbedChar
)

// Hook is the hook portion of a character core.
type Hook struct {
	State      HookState
	Pos        vmath.Vec2
	Dir        vmath.Vec2
	Tick       uint64
	HookedChar CharacterID
}

// Core is the plain physics body of a character. It contains everything the
// movement step reads and writes, and nothing else, so prediction can copy it
// by value.
type Core struct {
	Pos         vmath.Vec2
	Vel         vmath.Vec2
	Jumped      uint8 // jumps consumed since last grounding
	QueuedJumps uint8
	QueuedHooks uint8
	Hook        Hook
	Direction   int8
}

// WeaponSlot is the per-weapon ammo state inside the reusable core.
type WeaponSlot struct {
	Ammo          int
	NextRegenTick uint64
}

// BuffKind and DebuffKind tag character modifiers.
type BuffKind uint8

const (
	BuffNinja BuffKind = iota
	BuffGhost
)

type DebuffKind uint8

const (
	DebuffFreeze DebuffKind = iota
)

// NinjaState tracks an active ninja dash.
type NinjaState struct {
	BuffTicks   int
	DashTicks   int
	DashDir     vmath.Vec2
}

// ReusableCore holds the allocation-heavy character state that survives
// resets: owned weapons, buffs, debuffs, queued emoticons and the dash
// interaction set.
type ReusableCore struct {
	Weapons map[WeaponKind]*WeaponSlot
	Buffs   map[BuffKind]int // remaining ticks
	Debuffs map[DebuffKind]int
	Ninja   NinjaState
	// QueuedEmoticons drain one per tick into events.
	QueuedEmoticons []uint8
	// Interactions is the set of characters already hit by the current
	// ninja dash, so each dash damages a target exactly once.
	Interactions map[CharacterID]struct{}
}

func newReusableCore() *ReusableCore {
	rc := &ReusableCore{
		Weapons:      make(map[WeaponKind]*WeaponSlot),
		Buffs:        make(map[BuffKind]int),
		Debuffs:      make(map[DebuffKind]int),
		Interactions: make(map[CharacterID]struct{}),
	}
	rc.Weapons[WeaponHammer] = &WeaponSlot{Ammo: -1} // infinite
	rc.Weapons[WeaponGun] = &WeaponSlot{Ammo: WeaponMaxAmmo}
	return rc
}

// PhaseKind is the interactive phase of a character.
type PhaseKind uint8

const (
	PhaseNormal PhaseKind = iota
	PhaseDead
)

// Phase is Normal (hook usable) or Dead with a respawn countdown.
type Phase struct {
	Kind      PhaseKind
	RespawnIn int
}

// Character is one physics body in a world. It exclusively owns its core and
// reusable core; hook partnership lives in the world's HookedCharacters
// index, and the character only stores the partner's id.
type Character struct {
	ID       CharacterID
	PlayerID PlayerID
	Info     CharacterInfo
	// InfoVersion guards try_overwrite_character_info against reorder.
	InfoVersion uint64

	Core         Core
	ReusableCore *ReusableCore

	ActiveWeapon WeaponKind
	PrevWeapon   WeaponKind
	QueuedWeapon *WeaponKind

	Health       int
	Armor        int
	AttackRecoil int // ticks until the next shot may fire

	Side Side

	Eye        Eye
	DefaultEye Eye
	EyeTicks   int // pending eye-state reset cooldown

	Input input.State
	// diff carries this tick's unconsumed edge events.
	diff input.ConsumableDiff

	Phase Phase

	LastDmgAngle float64
	Killer       PlayerID

	// Score mirrors the world's CharacterScores entry for snapshots.
	Score int64

	// Non-linear event counter: bumped on teleport/respawn so interpolation
	// snaps instead of lerping across the discontinuity.
	Counter uint64

	// TuneZone is the zone under the character, resolved by handle_tiles.
	TuneZone uint8
}

// IsDead reports whether the character is in the dead phase.
func (c *Character) IsDead() bool { return c.Phase.Kind == PhaseDead }

// HasBuff reports whether a buff is active.
func (c *Character) HasBuff(b BuffKind) bool {
	return c.ReusableCore.Buffs[b] > 0
}

// GiveWeapon grants a weapon with ammo, clamping to the magazine size.
func (c *Character) GiveWeapon(w WeaponKind, ammo int) {
	if ammo > WeaponMaxAmmo {
		ammo = WeaponMaxAmmo
	}
	slot, ok := c.ReusableCore.Weapons[w]
	if !ok {
		c.ReusableCore.Weapons[w] = &WeaponSlot{Ammo: ammo}
		return
	}
	if slot.Ammo >= 0 && ammo > slot.Ammo {
		slot.Ammo = ammo
	}
}

// setEye applies a transient eye state with a reset cooldown.
func (c *Character) setEye(e Eye, ticks int) {
	c.Eye = e
	c.EyeTicks = ticks
}

// preTick resolves pending eye-state timers.
func (c *Character) preTick() {
	if c.EyeTicks > 0 {
		c.EyeTicks--
		if c.EyeTicks == 0 {
			c.Eye = c.DefaultEye
		}
	}
}

// cursorDir returns the unit aim direction from the character input.
func (c *Character) cursorDir() vmath.Vec2 {
	cur := vmath.V(vmath.Fixed(c.Input.Input.CursorX), vmath.Fixed(c.Input.Input.CursorY))
	if cur.IsZero() {
		return vmath.V(vmath.One, 0)
	}
	return cur.Normalize()
}

// queueWeapon validates and queues a weapon switch. The switch only applies
// when the weapon is owned.
func (c *Character) queueWeapon(w WeaponKind) {
	if w >= weaponKindCount {
		return
	}
	if _, ok := c.ReusableCore.Weapons[w]; !ok {
		return
	}
	queued := w
	c.QueuedWeapon = &queued
}

// applyQueuedWeapon performs a pending weapon switch outside the fire
// cooldown window.
func (c *Character) applyQueuedWeapon() {
	if c.QueuedWeapon == nil || c.AttackRecoil > 0 {
		return
	}
	if *c.QueuedWeapon != c.ActiveWeapon {
		c.PrevWeapon = c.ActiveWeapon
		c.ActiveWeapon = *c.QueuedWeapon
	}
	c.QueuedWeapon = nil
}
