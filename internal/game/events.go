package game

import "arena-core/internal/game/vmath"

// EventKind tags a world event.
type EventKind uint8

const (
	EventKill EventKind = iota
	EventHitSound
	EventExplosion
	EventHammerHit
	EventPlayerJoined
	EventPlayerLeft
	EventCharacterInfoChanged
	EventFlagGrab
	EventFlagReturn
	EventFlagCapture
	EventEmoticon
	EventSpawn
	EventDamageIndicator
)

// DamageIndicatorFan is the number of indicator particles spawned per hit,
// fanned around the last damage angle.
const DamageIndicatorFan = 8

// WorldEvent is one notification out of the simulation. Events are buffered
// per world and drained at end of tick; prediction ticks never emit them.
type WorldEvent struct {
	ID   EventID
	Tick uint64
	Kind EventKind
	Pos  vmath.Vec2

	// Kill / damage
	Killer PlayerID
	Victim PlayerID
	Weapon WeaponKind
	Angle  float64

	// Join / leave / info
	Player PlayerID
	Reason DropReason
	Text   string

	// Flags
	Side Side

	// Emoticon index
	Emoticon uint8
}

// DropReason explains a player_drop.
type DropReason uint8

const (
	DropDisconnect DropReason = iota
	DropTimeout
	DropKicked
	DropBanned
)

func (r DropReason) String() string {
	switch r {
	case DropTimeout:
		return "timeout"
	case DropKicked:
		return "kicked"
	case DropBanned:
		return "banned"
	default:
		return "disconnect"
	}
}

// eventBuffer collects the events of one world between drains.
type eventBuffer struct {
	events     []WorldEvent
	suppressed bool
}

// emit appends an event unless the buffer is in a suppressed (future-tick
// prediction) section.
func (b *eventBuffer) emit(ev WorldEvent) {
	if b.suppressed {
		return
	}
	b.events = append(b.events, ev)
}

// drain returns and clears the buffered events.
func (b *eventBuffer) drain() []WorldEvent {
	evs := b.events
	b.events = nil
	return evs
}
