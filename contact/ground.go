// Package contact maps named end-effector links to kinematic segments, derives
// their per-waypoint contact violation and velocity signals, and distributes
// contact forces under friction-cone constraints.
package contact

import (
	"math"

	"github.com/golang/geo/r3"
)

// GroundPlane is a horizontal contact surface at a fixed height with +Z normal.
type GroundPlane struct {
	Height float64
}

// Closest returns the closest point on the surface to p.
func (g GroundPlane) Closest(p r3.Vector) r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: g.Height}
}

// Normal returns the surface normal at p.
func (g GroundPlane) Normal(p r3.Vector) r3.Vector {
	return r3.Vector{Z: 1}
}

// Violation is the kinematic contact violation signal at one waypoint: the offset
// from the nearest valid contact surface and the tilt of the contact frame away
// from the surface normal.
type Violation struct {
	Offset r3.Vector
	Tilt   float64
}

// Norm2 returns the squared magnitude of the violation 4-vector.
func (v Violation) Norm2() float64 {
	return v.Offset.Norm2() + v.Tilt*v.Tilt
}

func clampedAcos(x float64) float64 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return math.Acos(x)
}
