// Package vmath provides the fixed-size vector and quaternion algebra used by
// the node tree, the transform engine and the solvers. All types are plain
// values; no operation allocates.
package vmath

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float64
}

// Zero is the zero vector.
var Zero = Vec3{}

// UnitX is the canonical direction returned when normalizing a zero vector.
var UnitX = Vec3{X: 1}

// FromV3 converts an sdfx vector.
func FromV3(v v3.Vec) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// V3 converts v to an sdfx vector.
func (v Vec3) V3() v3.Vec {
	return v3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

// Add returns v + u.
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{v.X + u.X, v.Y + u.Y, v.Z + u.Z}
}

// Sub returns v - u.
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{v.X - u.X, v.Y - u.Y, v.Z - u.Z}
}

// Mul returns the component-wise product.
func (v Vec3) Mul(u Vec3) Vec3 {
	return Vec3{v.X * u.X, v.Y * u.Y, v.Z * u.Z}
}

// Div returns the component-wise quotient. Zero components in u produce
// IEEE infinities or NaNs.
func (v Vec3) Div(u Vec3) Vec3 {
	return Vec3{v.X / u.X, v.Y / u.Y, v.Z / u.Z}
}

func (v Vec3) AddScalar(s float64) Vec3 {
	return Vec3{v.X + s, v.Y + s, v.Z + s}
}

func (v Vec3) SubScalar(s float64) Vec3 {
	return Vec3{v.X - s, v.Y - s, v.Z - s}
}

func (v Vec3) MulScalar(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) DivScalar(s float64) Vec3 {
	return Vec3{v.X / s, v.Y / s, v.Z / s}
}

// Negate returns -v.
func (v Vec3) Negate() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

// Dot returns the dot product.
func (v Vec3) Dot(u Vec3) float64 {
	return v.X*u.X + v.Y*u.Y + v.Z*u.Z
}

// Cross returns v × u.
func (v Vec3) Cross(u Vec3) Vec3 {
	return Vec3{
		v.Y*u.Z - v.Z*u.Y,
		v.Z*u.X - v.X*u.Z,
		v.X*u.Y - v.Y*u.X,
	}
}

// NCross returns u × v, the negated cross product.
func (v Vec3) NCross(u Vec3) Vec3 {
	return u.Cross(v)
}

func (v Vec3) LengthSquared() float64 {
	return v.Dot(v)
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.LengthSquared())
}

// Normalize returns v scaled to unit length. The zero vector normalizes to
// UnitX so that directions derived from coincident points stay finite.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return UnitX
	}
	return v.DivScalar(l)
}

// Distance returns |v - u|.
func (v Vec3) Distance(u Vec3) float64 {
	return v.Sub(u).Length()
}

// Lerp interpolates from v (t=0) to u (t=1).
func (v Vec3) Lerp(u Vec3, t float64) Vec3 {
	return v.Add(u.Sub(v).MulScalar(t))
}

// Project returns the projection of v onto the direction of onto.
func (v Vec3) Project(onto Vec3) Vec3 {
	return onto.MulScalar(v.Dot(onto) / onto.Dot(onto))
}

// IsZero reports whether all components are exactly zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Perpendicular returns a unit vector orthogonal to v.
func (v Vec3) Perpendicular() Vec3 {
	// Cross with the axis v is least aligned with.
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	var other Vec3
	switch {
	case ax <= ay && ax <= az:
		other = Vec3{X: 1}
	case ay <= az:
		other = Vec3{Y: 1}
	default:
		other = Vec3{Z: 1}
	}
	return v.Cross(other).Normalize()
}

// Angle returns the unsigned angle between v and u in radians.
func (v Vec3) Angle(u Vec3) float64 {
	d := v.Normalize().Dot(u.Normalize())
	return math.Acos(math.Max(-1, math.Min(1, d)))
}

// Rotate returns v rotated by the unit quaternion q (q·v·q*). The product is
// expanded into scalar arithmetic rather than two quaternion multiplies.
func (v Vec3) Rotate(q Quat) Vec3 {
	// t = 2 * (q.xyz × v)
	tx := 2 * (q.Y*v.Z - q.Z*v.Y)
	ty := 2 * (q.Z*v.X - q.X*v.Z)
	tz := 2 * (q.X*v.Y - q.Y*v.X)
	// v' = v + w*t + q.xyz × t
	return Vec3{
		X: v.X + q.W*tx + (q.Y*tz - q.Z*ty),
		Y: v.Y + q.W*ty + (q.Z*tx - q.X*tz),
		Z: v.Z + q.W*tz + (q.X*ty - q.Y*tx),
	}
}

// NRotate returns v rotated by the conjugate of q, undoing Rotate.
func (v Vec3) NRotate(q Quat) Vec3 {
	return v.Rotate(q.Conj())
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
