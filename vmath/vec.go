// Package vmath provides the vector and tensor primitives used by the simulation.
// Vectors are gonum's spatial types; this package adds the handful of helpers
// the physics code needs on top of them.
package vmath

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a 3D vector with value semantics.
type Vec3 = r3.Vec

// Vec2 is a 2D vector with value semantics.
type Vec2 = r2.Vec

// V3 builds a Vec3 from components.
func V3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// V3From converts a [3]float64 (the config representation) into a Vec3.
func V3From(a [3]float64) Vec3 {
	return Vec3{X: a[0], Y: a[1], Z: a[2]}
}

// Div divides every component of v by s.
func Div(v Vec3, s float64) Vec3 {
	return Vec3{X: v.X / s, Y: v.Y / s, Z: v.Z / s}
}

// Unit returns the unit vector colinear to v.
// ok is false for the zero vector, in which case the zero vector is returned.
func Unit(v Vec3) (u Vec3, ok bool) {
	l2 := r3.Norm2(v)
	if l2 == 0 {
		return Vec3{}, false
	}
	return r3.Scale(1/math.Sqrt(l2), v), true
}

// Normal returns the unit vector pointing from a towards b.
func Normal(a, b Vec3) (Vec3, bool) {
	return Unit(r3.Sub(b, a))
}

// Distance returns |a - b|.
func Distance(a, b Vec3) float64 {
	return math.Sqrt(r3.Norm2(r3.Sub(a, b)))
}

// AngleBetween returns the angle between a and b in radians.
// The angle is defined as zero when either vector has zero length.
func AngleBetween(a, b Vec3) float64 {
	la, lb := r3.Norm(a), r3.Norm(b)
	if la == 0 || lb == 0 {
		return 0
	}
	c := r3.Dot(a, b) / (la * lb)
	// Rounding can push |c| past 1
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}

// RadToDeg converts radians to degrees.
func RadToDeg(r float64) float64 {
	return r * 180 / math.Pi
}

// IsFinite reports whether every component of v is finite.
func IsFinite(v Vec3) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// XY projects v onto the XY plane.
func XY(v Vec3) Vec2 {
	return Vec2{X: v.X, Y: v.Y}
}

// Splat returns a vector with all components set to s.
func Splat(s float64) Vec3 {
	return Vec3{X: s, Y: s, Z: s}
}
