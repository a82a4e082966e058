package vmath

import "math"

// Quat is a rotation quaternion w + xi + yj + zk. Rotation helpers assume
// unit length; accumulation may leave it denormalized until Normalize.
type Quat struct {
	W, X, Y, Z float64
}

// IdentityQuat is the rotation that does nothing.
var IdentityQuat = Quat{W: 1}

// quatEpsilon guards the near-parallel branches of QuatBetween and Slerp.
const quatEpsilon = 1e-12

// QuatFromAxisAngle returns the rotation of angle radians about axis. The
// axis does not need to be normalized.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	a := axis.Normalize()
	s, c := math.Sincos(angle / 2)
	return Quat{W: c, X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// QuatBetween returns the shortest rotation taking direction from onto
// direction to. Opposite directions rotate half a turn about an arbitrary
// perpendicular axis.
func QuatBetween(from, to Vec3) Quat {
	a := from.Normalize()
	b := to.Normalize()
	d := a.Dot(b)
	if d >= 1-quatEpsilon {
		return IdentityQuat
	}
	if d <= -1+quatEpsilon {
		p := a.Perpendicular()
		return Quat{W: 0, X: p.X, Y: p.Y, Z: p.Z}
	}
	c := a.Cross(b)
	return Quat{W: 1 + d, X: c.X, Y: c.Y, Z: c.Z}.Normalize()
}

// Mul returns the Hamilton product q·r. Applied to a vector, r acts first.
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Conj returns the conjugate, which is the inverse of a unit quaternion.
func (q Quat) Conj() Quat {
	return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Negate returns -q, which encodes the same rotation.
func (q Quat) Negate() Quat {
	return Quat{W: -q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

func (q Quat) Dot(r Quat) float64 {
	return q.W*r.W + q.X*r.X + q.Y*r.Y + q.Z*r.Z
}

func (q Quat) Length() float64 {
	return math.Sqrt(q.Dot(q))
}

// Normalize returns q scaled to unit length. The zero quaternion becomes the
// identity.
func (q Quat) Normalize() Quat {
	l := q.Length()
	if l == 0 {
		return IdentityQuat
	}
	return Quat{W: q.W / l, X: q.X / l, Y: q.Y / l, Z: q.Z / l}
}

// Rotate returns v rotated by q.
func (q Quat) Rotate(v Vec3) Vec3 {
	return v.Rotate(q)
}

// AxisAngle decomposes q into a unit axis and an angle in [0, 2π]. The
// identity yields UnitX and zero.
func (q Quat) AxisAngle() (Vec3, float64) {
	q = q.Normalize()
	w := math.Max(-1, math.Min(1, q.W))
	angle := 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < quatEpsilon {
		return UnitX, 0
	}
	return Vec3{X: q.X / s, Y: q.Y / s, Z: q.Z / s}, angle
}

// Slerp interpolates along the shorter arc from q (t=0) to r (t=1).
func (q Quat) Slerp(r Quat, t float64) Quat {
	d := q.Dot(r)
	if d < 0 {
		r = r.Negate()
		d = -d
	}
	if d > 1-quatEpsilon {
		// Nearly identical; fall back to a normalized lerp.
		return Quat{
			W: q.W + (r.W-q.W)*t,
			X: q.X + (r.X-q.X)*t,
			Y: q.Y + (r.Y-q.Y)*t,
			Z: q.Z + (r.Z-q.Z)*t,
		}.Normalize()
	}
	theta := math.Acos(d)
	sin := math.Sin(theta)
	a := math.Sin((1-t)*theta) / sin
	b := math.Sin(t*theta) / sin
	return Quat{
		W: a*q.W + b*r.W,
		X: a*q.X + b*r.X,
		Y: a*q.Y + b*r.Y,
		Z: a*q.Z + b*r.Z,
	}
}

// IsFinite reports whether no component is NaN or infinite.
func (q Quat) IsFinite() bool {
	return isFinite(q.W) && isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z)
}
