// Package spatialmath defines the spatial math primitives used by the trajectory
// optimizer: rigid-body poses, rotation deltas, inertia tensors, and wrenches.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform composed of a unit quaternion rotation and a translation.
type Pose struct {
	Rotation quat.Number
	Point    r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// NewPose returns the pose with the given translation and rotation.
func NewPose(point r3.Vector, rotation quat.Number) Pose {
	return Pose{Rotation: rotation, Point: point}
}

// Compose returns the pose representing transform a followed by transform b, i.e.
// the pose of b expressed through a.
func Compose(a, b Pose) Pose {
	return Pose{
		Rotation: quat.Mul(a.Rotation, b.Rotation),
		Point:    a.TransformPoint(b.Point),
	}
}

// TransformPoint applies the full rigid transform to a point.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return p.RotateVector(pt).Add(p.Point)
}

// RotateVector applies only the rotational part of the pose to a vector.
func (p Pose) RotateVector(v r3.Vector) r3.Vector {
	return RotateVector(p.Rotation, v)
}

// RotateVector rotates a vector by a unit quaternion.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// Norm returns the norm of the imaginary part of a quaternion.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// QuatToR3AA converts a quat to an R3 axis angle in the same way the C++ Eigen
// library does: the returned vector's direction is the rotation axis and its
// magnitude is the rotation angle.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatToR3AA(q quat.Number) r3.Vector {
	denom := Norm(q)

	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}

	if denom < 1e-6 {
		return r3.Vector{}
	}
	return r3.Vector{X: angle * q.Imag / denom, Y: angle * q.Jmag / denom, Z: angle * q.Kmag / denom}
}

// OrientationDelta returns the axis-angle rotation taking the orientation of prev
// to the orientation of cur.
func OrientationDelta(prev, cur quat.Number) r3.Vector {
	return QuatToR3AA(quat.Mul(cur, quat.Conj(prev)))
}

// R4AAToQuat converts an axis-angle rotation of theta about the given (not
// necessarily unit) axis to a unit quaternion.
func R4AAToQuat(axis r3.Vector, theta float64) quat.Number {
	norm := axis.Norm()
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	sinA := math.Sin(theta / 2)
	return quat.Number{
		Real: math.Cos(theta / 2),
		Imag: axis.X / norm * sinA,
		Jmag: axis.Y / norm * sinA,
		Kmag: axis.Z / norm * sinA,
	}
}
