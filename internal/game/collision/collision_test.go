package collision

import (
	"testing"

	"arena-core/internal/game/vmath"
)

func testGrid() *Grid {
	g := NewGrid(20, 20)
	for x := 1; x < 19; x++ {
		g.SetTile(x, 15, Tile{Kind: TileSolid})
	}
	g.SetTile(10, 10, Tile{Kind: TileSolid})
	g.SetTile(5, 5, Tile{Kind: TileDeath})
	g.SetTile(7, 7, Tile{Kind: TileNoHook})
	g.SetTile(3, 3, Tile{Kind: TileAir, TuneZone: 2})
	return g
}

// TestTileQueries tests the point classification helpers.
func TestTileQueries(t *testing.T) {
	g := testGrid()

	if !g.CheckPoint(vmath.TileCenter(10, 10)) {
		t.Error("solid tile should block")
	}
	if g.CheckPoint(vmath.TileCenter(2, 2)) {
		t.Error("air tile should not block")
	}
	if !g.CheckPoint(vmath.TileCenter(7, 7)) {
		t.Error("no-hook tile should block movement")
	}
	if !g.IsHookBlocking(vmath.TileCenter(7, 7)) {
		t.Error("no-hook tile should block hooks")
	}
	if !g.IsDeath(vmath.TileCenter(5, 5)) {
		t.Error("death tile not detected")
	}
	if got := g.TuneZoneAt(vmath.TileCenter(3, 3)); got != 2 {
		t.Errorf("tune zone = %d, want 2", got)
	}
	// Outside the grid reads as solid.
	if !g.CheckPoint(vmath.V(-1000, -1000)) {
		t.Error("out of bounds should read solid")
	}
}

// TestMoveBoxStopsAtFloor drops a box onto the floor row and expects it to
// stop with zero vertical velocity.
func TestMoveBoxStopsAtFloor(t *testing.T) {
	g := testGrid()
	half := vmath.V(112, 112)
	pos := vmath.TileCenter(9, 13)
	vel := vmath.V(0, 3*256) // falling three tiles per tick

	pos, vel = g.MoveBox(pos, vel, half, 0)
	if vel.Y != 0 {
		t.Errorf("vertical velocity after floor hit = %d, want 0", vel.Y)
	}
	if g.TestBox(pos, half) {
		t.Error("box ended inside a solid tile")
	}
}

// TestMoveBoxFreeFall moves through open air unobstructed.
func TestMoveBoxFreeFall(t *testing.T) {
	g := testGrid()
	half := vmath.V(112, 112)
	start := vmath.TileCenter(15, 3)
	vel := vmath.V(128, 64)

	pos, outVel := g.MoveBox(start, vel, half, 0)
	if outVel != vel {
		t.Errorf("velocity changed in free air: %v", outVel)
	}
	want := start.Add(vel)
	// Sub-stepping may round by a unit or two.
	if pos.Sub(want).LengthSq() > 16 {
		t.Errorf("free move ended at %v, want ~%v", pos, want)
	}
}

// TestIntersectLineFeedback walks a horizontal segment and checks the visited
// tile sequence.
func TestIntersectLineFeedback(t *testing.T) {
	g := testGrid()
	var visited [][2]int
	g.IntersectLineFeedback(vmath.TileCenter(2, 10), vmath.TileCenter(6, 10), func(tx, ty int, _ Tile) bool {
		visited = append(visited, [2]int{tx, ty})
		return true
	})

	want := [][2]int{{2, 10}, {3, 10}, {4, 10}, {5, 10}, {6, 10}}
	if len(visited) != len(want) {
		t.Fatalf("visited %d tiles, want %d: %v", len(visited), len(want), visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("step %d: visited %v, want %v", i, visited[i], want[i])
		}
	}
}

// TestIntersectLineFeedbackDiagonal ensures a diagonal walk reaches its end
// tile without skipping.
func TestIntersectLineFeedbackDiagonal(t *testing.T) {
	g := testGrid()
	last := [2]int{-1, -1}
	count := 0
	g.IntersectLineFeedback(vmath.TileCenter(2, 2), vmath.TileCenter(8, 12), func(tx, ty int, _ Tile) bool {
		last = [2]int{tx, ty}
		count++
		return true
	})
	if last != [2]int{8, 12} {
		t.Errorf("walk ended at %v, want (8, 12)", last)
	}
	if count < 11 {
		t.Errorf("visited only %d tiles", count)
	}
}

// TestIntersectLine finds the first blocking tile.
func TestIntersectLine(t *testing.T) {
	g := testGrid()

	hit, ok := g.IntersectLine(vmath.TileCenter(10, 5), vmath.TileCenter(10, 14))
	if !ok {
		t.Fatal("expected a hit on the solid tile at (10, 10)")
	}
	if hit != vmath.TileCenter(10, 10) {
		t.Errorf("hit at %v, want center of (10, 10)", hit)
	}

	if _, ok := g.IntersectLine(vmath.TileCenter(2, 2), vmath.TileCenter(4, 2)); ok {
		t.Error("clear line reported a hit")
	}
}

// TestSpawnFallback returns default spawns when a side class is empty.
func TestSpawnFallback(t *testing.T) {
	g := NewGrid(10, 10)
	g.AddSpawn(SpawnDefault, vmath.TileCenter(5, 5))
	if got := g.Spawns(SpawnRed); len(got) != 1 {
		t.Fatalf("expected fallback to default spawns, got %d", len(got))
	}
}
