// Package vmath provides the fixed-point vector math used by the simulation.
// The canonical unit is 1/256 of a tile; positions and velocities are 32-bit
// signed fixed-point so that every tick is bit-reproducible across builds.
package vmath

import "math"

const (
	// UnitsPerTile is the number of fixed-point units per map tile.
	UnitsPerTile = 256

	// FracBits is the number of fractional bits in a Fixed scalar.
	FracBits = 8

	// One is the Fixed representation of 1.0.
	One Fixed = 1 << FracBits
)

// Fixed is a signed 24.8 fixed-point scalar.
type Fixed int32

// FromFloat converts a float to Fixed, rounding toward nearest.
func FromFloat(f float64) Fixed {
	return Fixed(math.Round(f * float64(One)))
}

// Float returns the float64 value of f. Only rendering and logging use this.
func (f Fixed) Float() float64 {
	return float64(f) / float64(One)
}

// Mul multiplies two Fixed scalars.
func (f Fixed) Mul(o Fixed) Fixed {
	return Fixed(int64(f) * int64(o) >> FracBits)
}

// Div divides f by o. o must not be zero.
func (f Fixed) Div(o Fixed) Fixed {
	return Fixed((int64(f) << FracBits) / int64(o))
}

// Abs returns the absolute value of f.
func (f Fixed) Abs() Fixed {
	if f < 0 {
		return -f
	}
	return f
}

// Clamp bounds f into [lo, hi].
func (f Fixed) Clamp(lo, hi Fixed) Fixed {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// Vec2 is a fixed-point 2D vector.
type Vec2 struct {
	X, Y Fixed
}

// V builds a vector from two Fixed components.
func V(x, y Fixed) Vec2 { return Vec2{X: x, Y: y} }

// FromFloats builds a vector from float components.
func FromFloats(x, y float64) Vec2 {
	return Vec2{X: FromFloat(x), Y: FromFloat(y)}
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v * s for a Fixed scalar s.
func (v Vec2) Scale(s Fixed) Vec2 {
	return Vec2{v.X.Mul(s), v.Y.Mul(s)}
}

// Neg returns -v.
func (v Vec2) Neg() Vec2 { return Vec2{-v.X, -v.Y} }

// Dot returns the dot product as a 64-bit intermediate reduced to Fixed.
func (v Vec2) Dot(o Vec2) Fixed {
	return Fixed((int64(v.X)*int64(o.X) + int64(v.Y)*int64(o.Y)) >> FracBits)
}

// LengthSq returns |v|^2 without fractional reduction, for cheap comparisons.
func (v Vec2) LengthSq() int64 {
	return int64(v.X)*int64(v.X) + int64(v.Y)*int64(v.Y)
}

// Length returns |v| as a Fixed scalar using integer square root.
func (v Vec2) Length() Fixed {
	return Fixed(isqrt(v.LengthSq()))
}

// Normalize returns the unit vector of v scaled to One. The zero vector
// normalizes to zero.
func (v Vec2) Normalize() Vec2 {
	l := int64(v.Length())
	if l == 0 {
		return Vec2{}
	}
	return Vec2{
		X: Fixed(int64(v.X) << FracBits / l),
		Y: Fixed(int64(v.Y) << FracBits / l),
	}
}

// Distance returns |v - o|.
func (v Vec2) Distance(o Vec2) Fixed {
	return v.Sub(o).Length()
}

// IsZero reports whether both components are zero.
func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Floats returns the float64 components. Rendering only.
func (v Vec2) Floats() (float64, float64) {
	return v.X.Float(), v.Y.Float()
}

// Direction returns the unit vector for an angle in radians, quantized to
// Fixed. The quantization makes the result reproducible once computed, but
// callers that need tick determinism must only feed constants.
func Direction(angle float64) Vec2 {
	return FromFloats(math.Cos(angle), math.Sin(angle))
}

// Angle returns the angle of v in radians.
func (v Vec2) Angle() float64 {
	return math.Atan2(v.Y.Float(), v.X.Float())
}

// Rotate returns v rotated by the given angle, quantized to Fixed.
func (v Vec2) Rotate(angle float64) Vec2 {
	s, c := math.Sincos(angle)
	sf, cf := FromFloat(s), FromFloat(c)
	return Vec2{
		X: v.X.Mul(cf) - v.Y.Mul(sf),
		Y: v.X.Mul(sf) + v.Y.Mul(cf),
	}
}

// Lerp interpolates between a and b with t in [0, One].
func Lerp(a, b Vec2, t Fixed) Vec2 {
	return a.Add(b.Sub(a).Scale(t))
}

// Mix interpolates between two Fixed scalars with t in [0, One].
func Mix(a, b, t Fixed) Fixed {
	return a + (b - a).Mul(t)
}

// isqrt computes the integer square root of a non-negative int64.
func isqrt(n int64) int64 {
	if n < 2 {
		return n
	}
	x := int64(math.Sqrt(float64(n)))
	// Correct the float estimate; it can be off by one in either direction.
	for x > 0 && x*x > n {
		x--
	}
	for (x+1)*(x+1) <= n {
		x++
	}
	return x
}

// TileCoord converts a fixed-point world coordinate to a tile index.
func TileCoord(f Fixed) int {
	if f < 0 {
		return int((f - (UnitsPerTile - 1)) / UnitsPerTile)
	}
	return int(f / UnitsPerTile)
}

// TileCenter returns the world position of the center of tile (tx, ty).
func TileCenter(tx, ty int) Vec2 {
	return Vec2{
		X: Fixed(tx*UnitsPerTile + UnitsPerTile/2),
		Y: Fixed(ty*UnitsPerTile + UnitsPerTile/2),
	}
}
