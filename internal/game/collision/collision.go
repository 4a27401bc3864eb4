// Package collision implements the tile-grid physics queries of the game
// world: point/box solidity tests, swept box movement and line walks. All
// queries operate on fixed-point world coordinates from vmath.
package collision

import (
	"arena-core/internal/game/vmath"
)

// TileKind classifies a physics-layer tile.
type TileKind uint8

const (
	TileAir TileKind = iota
	TileSolid
	TileNoHook // solid for movement, but hooks slip off
	TileDeath  // kills characters on touch
)

// Tile is one cell of the physics layer. TuneZone indexes the map's tuning
// table; zone 0 is the map-wide default.
type Tile struct {
	Kind     TileKind
	TuneZone uint8
}

// SpawnKind selects a spawn point class.
type SpawnKind uint8

const (
	SpawnDefault SpawnKind = iota
	SpawnRed
	SpawnBlue
)

// Grid is the immutable physics layer of a loaded map.
type Grid struct {
	width  int
	height int
	tiles  []Tile

	spawns map[SpawnKind][]vmath.Vec2
	// Flag stands and pickup seeds are placed by the map.
	FlagStandRed  vmath.Vec2
	FlagStandBlue vmath.Vec2
	PickupSpots   []PickupSpot
}

// PickupSpot seeds a pickup entity at world load.
type PickupSpot struct {
	Pos  vmath.Vec2
	Kind uint8 // interpreted by the game package
}

// NewGrid builds a grid of the given tile dimensions, all air, with a solid
// one-tile border so entities can never leave the world.
func NewGrid(width, height int) *Grid {
	g := &Grid{
		width:  width,
		height: height,
		tiles:  make([]Tile, width*height),
		spawns: make(map[SpawnKind][]vmath.Vec2),
	}
	for x := 0; x < width; x++ {
		g.SetTile(x, 0, Tile{Kind: TileSolid})
		g.SetTile(x, height-1, Tile{Kind: TileSolid})
	}
	for y := 0; y < height; y++ {
		g.SetTile(0, y, Tile{Kind: TileSolid})
		g.SetTile(width-1, y, Tile{Kind: TileSolid})
	}
	return g
}

// Width returns the grid width in tiles.
func (g *Grid) Width() int { return g.width }

// Height returns the grid height in tiles.
func (g *Grid) Height() int { return g.height }

// SetTile overwrites the tile at (tx, ty). Out-of-range writes are ignored.
func (g *Grid) SetTile(tx, ty int, t Tile) {
	if tx < 0 || ty < 0 || tx >= g.width || ty >= g.height {
		return
	}
	g.tiles[ty*g.width+tx] = t
}

// TileAt returns the tile at tile coordinates (tx, ty). Everything outside
// the grid reads as solid.
func (g *Grid) TileAt(tx, ty int) Tile {
	if tx < 0 || ty < 0 || tx >= g.width || ty >= g.height {
		return Tile{Kind: TileSolid}
	}
	return g.tiles[ty*g.width+tx]
}

// AddSpawn registers a spawn point of the given class.
func (g *Grid) AddSpawn(kind SpawnKind, pos vmath.Vec2) {
	g.spawns[kind] = append(g.spawns[kind], pos)
}

// Spawns returns the spawn points of the given class, falling back to the
// default class when the requested one is empty.
func (g *Grid) Spawns(kind SpawnKind) []vmath.Vec2 {
	if s := g.spawns[kind]; len(s) > 0 {
		return s
	}
	return g.spawns[SpawnDefault]
}

// tileAtPos resolves the tile under a world position.
func (g *Grid) tileAtPos(p vmath.Vec2) Tile {
	return g.TileAt(vmath.TileCoord(p.X), vmath.TileCoord(p.Y))
}

// CheckPoint reports whether the world position lies inside a movement-solid
// tile.
func (g *Grid) CheckPoint(p vmath.Vec2) bool {
	k := g.tileAtPos(p).Kind
	return k == TileSolid || k == TileNoHook
}

// IsDeath reports whether the world position lies inside a death tile.
func (g *Grid) IsDeath(p vmath.Vec2) bool {
	return g.tileAtPos(p).Kind == TileDeath
}

// IsHookBlocking reports whether a hook terminates at this position without
// attaching (no-hook tiles).
func (g *Grid) IsHookBlocking(p vmath.Vec2) bool {
	return g.tileAtPos(p).Kind == TileNoHook
}

// TuneZoneAt returns the tuning zone index under a world position.
func (g *Grid) TuneZoneAt(p vmath.Vec2) uint8 {
	return g.tileAtPos(p).TuneZone
}

// TestBox reports whether an axis-aligned box centered at pos with the given
// half-extents overlaps any movement-solid tile. The four corners plus the
// center are sampled, which is exact for boxes up to one tile in size.
func (g *Grid) TestBox(pos vmath.Vec2, half vmath.Vec2) bool {
	return g.CheckPoint(vmath.V(pos.X-half.X, pos.Y-half.Y)) ||
		g.CheckPoint(vmath.V(pos.X+half.X, pos.Y-half.Y)) ||
		g.CheckPoint(vmath.V(pos.X-half.X, pos.Y+half.Y)) ||
		g.CheckPoint(vmath.V(pos.X+half.X, pos.Y+half.Y)) ||
		g.CheckPoint(pos)
}

// MoveBox sweeps a box from pos by vel, resolving collisions per axis.
// Elasticity is a Fixed in [0, One); a blocked axis keeps -vel*elasticity.
// Returns the final position and velocity.
func (g *Grid) MoveBox(pos, vel vmath.Vec2, half vmath.Vec2, elasticity vmath.Fixed) (vmath.Vec2, vmath.Vec2) {
	dist := vel.Length()
	if dist == 0 {
		return pos, vel
	}

	// Walk in sub-tile steps so fast entities cannot tunnel.
	steps := int(dist/(vmath.UnitsPerTile/2)) + 1
	step := vel.Scale(vmath.One / vmath.Fixed(steps))

	for i := 0; i < steps; i++ {
		next := pos.Add(step)
		if !g.TestBox(next, half) {
			pos = next
			continue
		}
		// Try each axis alone.
		hitX, hitY := false, false
		if g.TestBox(vmath.V(next.X, pos.Y), half) {
			hitX = true
		}
		if g.TestBox(vmath.V(pos.X, next.Y), half) {
			hitY = true
		}
		if !hitX && !hitY {
			// Corner case: both single-axis moves are free but the
			// combined one is not. Resolve as a full stop.
			hitX, hitY = true, true
		}
		if hitX {
			step.X = -step.X.Mul(elasticity)
			vel.X = -vel.X.Mul(elasticity)
		} else {
			pos.X = next.X
		}
		if hitY {
			step.Y = -step.Y.Mul(elasticity)
			vel.Y = -vel.Y.Mul(elasticity)
		} else {
			pos.Y = next.Y
		}
	}
	return pos, vel
}

// TileVisitor receives every tile crossed by IntersectLineFeedback, in walk
// order. Returning false stops the walk at that tile.
type TileVisitor func(tx, ty int, t Tile) bool

// IntersectLineFeedback walks the tiles along the segment from a to b with a
// DDA and invokes visit for each tile crossed, including the start tile.
func (g *Grid) IntersectLineFeedback(a, b vmath.Vec2, visit TileVisitor) {
	tx, ty := vmath.TileCoord(a.X), vmath.TileCoord(a.Y)
	ex, ey := vmath.TileCoord(b.X), vmath.TileCoord(b.Y)

	dx := int64(b.X - a.X)
	dy := int64(b.Y - a.Y)

	stepX, stepY := 1, -1
	if dx < 0 {
		stepX = -1
		dx = -dx
	}
	if dy >= 0 {
		stepY = 1
	} else {
		dy = -dy
	}

	if !visit(tx, ty, g.TileAt(tx, ty)) {
		return
	}

	// tMax: distance (scaled by dx*dy-free cross terms) to the next tile
	// boundary on each axis; tDelta: distance between boundaries.
	boundX := int64((tx+1)*vmath.UnitsPerTile) - int64(a.X)
	if stepX < 0 {
		boundX = int64(a.X) - int64(tx*vmath.UnitsPerTile)
	}
	boundY := int64((ty+1)*vmath.UnitsPerTile) - int64(a.Y)
	if stepY < 0 {
		boundY = int64(a.Y) - int64(ty*vmath.UnitsPerTile)
	}

	// Compare boundX/dx vs boundY/dy without division.
	for tx != ex || ty != ey {
		advanceX := false
		switch {
		case dx == 0:
			advanceX = false
		case dy == 0:
			advanceX = true
		default:
			advanceX = boundX*dy <= boundY*dx
		}
		if advanceX {
			tx += stepX
			boundX += vmath.UnitsPerTile
		} else {
			ty += stepY
			boundY += vmath.UnitsPerTile
		}
		if !visit(tx, ty, g.TileAt(tx, ty)) {
			return
		}
	}
}

// IntersectLine returns the first movement-solid tile hit along the segment
// from a to b, or ok=false when the line is clear. The returned position is
// the center of the blocking tile.
func (g *Grid) IntersectLine(a, b vmath.Vec2) (hit vmath.Vec2, ok bool) {
	g.IntersectLineFeedback(a, b, func(tx, ty int, t Tile) bool {
		if t.Kind == TileSolid || t.Kind == TileNoHook {
			hit = vmath.TileCenter(tx, ty)
			ok = true
			return false
		}
		return true
	})
	return hit, ok
}
