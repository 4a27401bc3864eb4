package game

import "arena-core/internal/game/vmath"

// TicksPerSecond is the reference simulation rate.
const TicksPerSecond = 50

// Tunings is the per-zone physics parameter set. Zone 0 holds the map-wide
// defaults; tune tiles index additional entries. Speeds and impulses are in
// fixed-point world units per tick; delays are in milliseconds and converted
// to whole ticks with ceiling.
type Tunings struct {
	Gravity            vmath.Fixed
	GroundControlSpeed vmath.Fixed
	GroundControlAccel vmath.Fixed
	GroundFriction     vmath.Fixed // velocity multiplier per tick, <= One
	GroundJumpImpulse  vmath.Fixed
	AirControlSpeed    vmath.Fixed
	AirControlAccel    vmath.Fixed
	AirFriction        vmath.Fixed
	AirJumpImpulse     vmath.Fixed

	HookLength    vmath.Fixed
	HookFireSpeed vmath.Fixed
	HookDragAccel vmath.Fixed
	HookDragSpeed vmath.Fixed

	HammerFireDelayMS  int
	GunFireDelayMS     int
	ShotgunFireDelayMS int
	GrenadeFireDelayMS int
	LaserFireDelayMS   int

	GunSpeed        vmath.Fixed
	GunCurvature    vmath.Fixed
	GunLifetime     int // ticks
	ShotgunSpeed    vmath.Fixed
	ShotgunSpeeddiff vmath.Fixed // outer-pellet speed factor, One = no spread
	ShotgunLifetime int
	GrenadeSpeed     vmath.Fixed
	GrenadeCurvature vmath.Fixed
	GrenadeLifetime  int
	LaserReach       vmath.Fixed
	LaserBounceNum   int
	LaserBounceDelay int // ticks between rendered bounce segments

	ExplosionRadius vmath.Fixed
	ExplosionForce  vmath.Fixed

	PlayerCollision bool
	PlayerHooking   bool
}

// DefaultTunings returns the zone-0 parameter set.
func DefaultTunings() Tunings {
	// Speeds and lengths are in tiles; the classic values are pixel-based
	// with 32 px per tile, hence the /32.
	return Tunings{
		Gravity:            vmath.FromFloat(0.5 / 32),
		GroundControlSpeed: vmath.FromFloat(10.0 / 32),
		GroundControlAccel: vmath.FromFloat(2.0 / 32),
		GroundFriction:     vmath.FromFloat(0.5),
		GroundJumpImpulse:  vmath.FromFloat(13.2 / 32),
		AirControlSpeed:    vmath.FromFloat(5.0 / 32),
		AirControlAccel:    vmath.FromFloat(1.5 / 32),
		AirFriction:       vmath.FromFloat(0.95),
		AirJumpImpulse:    vmath.FromFloat(12.0 / 32),

		HookLength:    vmath.FromFloat(380.0 / 32),
		HookFireSpeed: vmath.FromFloat(80.0 / 32),
		HookDragAccel: vmath.FromFloat(3.0 / 32),
		HookDragSpeed: vmath.FromFloat(15.0 / 32),

		HammerFireDelayMS:  125,
		GunFireDelayMS:     125,
		ShotgunFireDelayMS: 500,
		GrenadeFireDelayMS: 500,
		LaserFireDelayMS:   800,

		GunSpeed:         vmath.FromFloat(2200.0 / 32 / TicksPerSecond),
		GunCurvature:     vmath.FromFloat(1.25 / 32),
		GunLifetime:      2 * TicksPerSecond,
		ShotgunSpeed:     vmath.FromFloat(2750.0 / 32 / TicksPerSecond),
		ShotgunSpeeddiff: vmath.FromFloat(0.8),
		ShotgunLifetime:  TicksPerSecond / 5,
		GrenadeSpeed:     vmath.FromFloat(1000.0 / 32 / TicksPerSecond),
		GrenadeCurvature: vmath.FromFloat(7.0 / 32),
		GrenadeLifetime:  2 * TicksPerSecond,
		LaserReach:       vmath.FromFloat(800.0 / 32),
		LaserBounceNum:   1,
		LaserBounceDelay: TicksPerSecond * 150 / 1000,

		ExplosionRadius: vmath.FromFloat(135.0 / 32),
		ExplosionForce:  vmath.FromFloat(12.0 / 32),

		PlayerCollision: true,
		PlayerHooking:   true,
	}
}

// FireDelayTicks converts a millisecond fire delay to whole ticks, rounding
// up so a delay never undershoots.
func FireDelayTicks(ms int) int {
	return (ms*TicksPerSecond + 999) / 1000
}

// TuneTable maps tune-zone indices to parameter sets.
type TuneTable struct {
	zones []Tunings
}

// NewTuneTable builds a table with the given zone-0 defaults.
func NewTuneTable(def Tunings) *TuneTable {
	return &TuneTable{zones: []Tunings{def}}
}

// SetZone assigns the parameters of a tune zone, growing the table with
// copies of zone 0 as needed. Zone indices fit a map tile, so at most 256.
func (t *TuneTable) SetZone(zone uint8, tn Tunings) {
	for len(t.zones) <= int(zone) {
		t.zones = append(t.zones, t.zones[0])
	}
	t.zones[zone] = tn
}

// Zone returns the parameters of a tune zone, falling back to zone 0.
func (t *TuneTable) Zone(zone uint8) *Tunings {
	if int(zone) < len(t.zones) {
		return &t.zones[zone]
	}
	return &t.zones[0]
}
