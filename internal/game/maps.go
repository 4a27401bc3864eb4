package game

import (
	"crypto/sha256"
	"fmt"

	"arena-core/internal/game/collision"
	"arena-core/internal/game/vmath"
)

// Built-in map layouts. A real deployment compiles maps from map files;
// these cover the shipped rotation and the tests.

// BuildMap constructs a named map's physics grid. Unknown names fall back to
// dm1 so a bad vote can never take the server down.
func BuildMap(name string) (*collision.Grid, []byte) {
	var g *collision.Grid
	switch name {
	case "ctf1":
		g = buildCTF1()
	case "dm2":
		g = buildDM2()
	default:
		g = buildDM1()
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("builtin:%s", name)))
	return g, sum[:]
}

// buildDM1 is a flat arena with two platforms and five pickups.
func buildDM1() *collision.Grid {
	g := collision.NewGrid(60, 30)
	// Floor.
	for x := 1; x < 59; x++ {
		g.SetTile(x, 27, collision.Tile{Kind: collision.TileSolid})
	}
	// Platforms.
	for x := 10; x < 22; x++ {
		g.SetTile(x, 20, collision.Tile{Kind: collision.TileSolid})
	}
	for x := 38; x < 50; x++ {
		g.SetTile(x, 20, collision.Tile{Kind: collision.TileSolid})
	}
	// Death tiles below the center of the floor; the floor above them is
	// solid.
	for x := 28; x < 32; x++ {
		g.SetTile(x, 28, collision.Tile{Kind: collision.TileDeath})
	}

	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(5, 26))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(30, 26))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(54, 26))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(15, 19))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(43, 19))

	g.PickupSpots = []collision.PickupSpot{
		{Pos: vmath.TileCenter(12, 19), Kind: uint8(PickupHeart)},
		{Pos: vmath.TileCenter(46, 19), Kind: uint8(PickupShield)},
		{Pos: vmath.TileCenter(20, 26), Kind: uint8(PickupShotgun)},
		{Pos: vmath.TileCenter(40, 26), Kind: uint8(PickupGrenade)},
		{Pos: vmath.TileCenter(30, 19), Kind: uint8(PickupNinja)},
	}
	return g
}

// buildDM2 is a taller arena with hook towers.
func buildDM2() *collision.Grid {
	g := collision.NewGrid(50, 40)
	for x := 1; x < 49; x++ {
		g.SetTile(x, 37, collision.Tile{Kind: collision.TileSolid})
	}
	for y := 20; y < 37; y++ {
		g.SetTile(12, y, collision.Tile{Kind: collision.TileNoHook})
		g.SetTile(37, y, collision.Tile{Kind: collision.TileNoHook})
	}
	for x := 20; x < 30; x++ {
		g.SetTile(x, 28, collision.Tile{Kind: collision.TileSolid})
	}

	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(5, 36))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(25, 27))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(44, 36))

	g.PickupSpots = []collision.PickupSpot{
		{Pos: vmath.TileCenter(25, 36), Kind: uint8(PickupLaser)},
		{Pos: vmath.TileCenter(6, 36), Kind: uint8(PickupHeart)},
		{Pos: vmath.TileCenter(43, 36), Kind: uint8(PickupHeart)},
	}
	return g
}

// buildCTF1 is a symmetric two-base capture map.
func buildCTF1() *collision.Grid {
	g := collision.NewGrid(80, 30)
	for x := 1; x < 79; x++ {
		g.SetTile(x, 27, collision.Tile{Kind: collision.TileSolid})
	}
	// Base roofs.
	for x := 2; x < 14; x++ {
		g.SetTile(x, 21, collision.Tile{Kind: collision.TileSolid})
		g.SetTile(79-x-1, 21, collision.Tile{Kind: collision.TileSolid})
	}

	g.AddSpawn(collision.SpawnRed, vmath.TileCenter(5, 26))
	g.AddSpawn(collision.SpawnRed, vmath.TileCenter(9, 26))
	g.AddSpawn(collision.SpawnBlue, vmath.TileCenter(74, 26))
	g.AddSpawn(collision.SpawnBlue, vmath.TileCenter(70, 26))
	g.AddSpawn(collision.SpawnDefault, vmath.TileCenter(40, 26))

	g.FlagStandRed = vmath.TileCenter(4, 26)
	g.FlagStandBlue = vmath.TileCenter(75, 26)

	g.PickupSpots = []collision.PickupSpot{
		{Pos: vmath.TileCenter(40, 26), Kind: uint8(PickupShield)},
		{Pos: vmath.TileCenter(20, 26), Kind: uint8(PickupGrenade)},
		{Pos: vmath.TileCenter(59, 26), Kind: uint8(PickupGrenade)},
	}
	return g
}
