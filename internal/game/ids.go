package game

import (
	"fmt"
	"sync/atomic"
)

// ID is an opaque 128-bit identifier. IDs are generated monotonically by a
// per-process generator, so ordering by (Hi, Lo) is creation order and gives
// the deterministic iteration order the snapshot codec needs.
type ID struct {
	Hi, Lo uint64
}

// Less orders IDs by creation time.
func (a ID) Less(b ID) bool {
	if a.Hi != b.Hi {
		return a.Hi < b.Hi
	}
	return a.Lo < b.Lo
}

// IsZero reports whether the ID is the zero value (no entity).
func (a ID) IsZero() bool { return a.Hi == 0 && a.Lo == 0 }

// Distinct identifier kinds. They share the 128-bit representation but are
// not interchangeable.
type (
	PlayerID     ID
	CharacterID  ID
	StageID      ID
	ProjectileID ID
	LaserID      ID
	FlagID       ID
	PickupID     ID
)

func (a ID) marshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%016x-%016x", a.Hi, a.Lo)), nil
}

func (a *ID) unmarshalText(text []byte) error {
	_, err := fmt.Sscanf(string(text), "%16x-%16x", &a.Hi, &a.Lo)
	return err
}

// PlayerID and StageID appear as JSON map keys on the wire, so they carry a
// text encoding.
func (a PlayerID) MarshalText() ([]byte, error)  { return ID(a).marshalText() }
func (a *PlayerID) UnmarshalText(t []byte) error { return (*ID)(a).unmarshalText(t) }
func (a StageID) MarshalText() ([]byte, error)   { return ID(a).marshalText() }
func (a *StageID) UnmarshalText(t []byte) error  { return (*ID)(a).unmarshalText(t) }

// EventID numbers world events within one game state.
type EventID uint64

// IDGenerator hands out monotonic 128-bit identifiers. The high word is a
// per-process epoch so ids from different processes never collide.
type IDGenerator struct {
	epoch uint64
	next  atomic.Uint64
}

// NewIDGenerator creates a generator with the given process epoch.
func NewIDGenerator(epoch uint64) *IDGenerator {
	g := &IDGenerator{epoch: epoch}
	g.next.Store(1)
	return g
}

func (g *IDGenerator) nextID() ID {
	return ID{Hi: g.epoch, Lo: g.next.Add(1)}
}

func (g *IDGenerator) NextPlayerID() PlayerID         { return PlayerID(g.nextID()) }
func (g *IDGenerator) NextCharacterID() CharacterID   { return CharacterID(g.nextID()) }
func (g *IDGenerator) NextStageID() StageID           { return StageID(g.nextID()) }
func (g *IDGenerator) NextProjectileID() ProjectileID { return ProjectileID(g.nextID()) }
func (g *IDGenerator) NextLaserID() LaserID           { return LaserID(g.nextID()) }
func (g *IDGenerator) NextFlagID() FlagID             { return FlagID(g.nextID()) }
func (g *IDGenerator) NextPickupID() PickupID         { return PickupID(g.nextID()) }
