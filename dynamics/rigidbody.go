// Package dynamics aggregates per-waypoint rigid-body quantities for a rolled-out
// trajectory: center-of-mass kinematics, angular momentum, and the reference
// wrench the contact forces must balance.
package dynamics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/spatialmath"
)

// massSegment is one entry of the precomputed, index-stable array of massed
// segments, built once so per-waypoint passes never do name lookups.
type massSegment struct {
	segmentIndex int
	mass         float64
	centerOfMass r3.Vector
	inertia      spatialmath.Inertia
}

// Snapshot is the rigid-body state derived for one waypoint. It has no
// persistent identity; every field is recomputed on each evaluation.
type Snapshot struct {
	CoMPosition     r3.Vector
	CoMVelocity     r3.Vector
	CoMAcceleration r3.Vector
	AngularMomentum r3.Vector
	Torque          r3.Vector

	GravityWrench spatialmath.Wrench
	// InertialWrench carries the -m·a and momentum-rate terms. It is computed
	// but not folded into ReferenceWrench; see ReferenceWrench.
	InertialWrench spatialmath.Wrench
	// ReferenceWrench is the wrench the contact forces must balance. It
	// currently equals GravityWrench alone; whether the inertial terms belong in
	// the balance is an unresolved modeling question, so they are surfaced on
	// InertialWrench rather than silently summed.
	ReferenceWrench spatialmath.Wrench
}

// Aggregator computes mass-weighted CoM kinematics, angular momentum, and the
// per-waypoint reference wrench by finite differencing rolled-out segment poses.
type Aggregator struct {
	segments  []massSegment
	totalMass float64
	gravity   r3.Vector
	numPoints int
	dt        float64

	linkPositions    [][]r3.Vector // [mass segment][waypoint]
	linkVelocities   [][]r3.Vector
	linkAngularVel   [][]r3.Vector
	comPositions     []r3.Vector
	comVelocities    []r3.Vector
	comAccelerations []r3.Vector
	angularMomentum  []r3.Vector
	torques          []r3.Vector
	reference        []spatialmath.Wrench
}

// NewAggregator builds the massed-segment array and scratch buffers. A robot with
// zero total mass or a non-positive discretization is degenerate and rejected.
func NewAggregator(model *kinematics.RobotModel, numPoints int, dt, gravityMagnitude float64) (*Aggregator, error) {
	if dt <= 0 {
		return nil, errors.Errorf("discretization must be positive, got %f", dt)
	}
	if numPoints < 4 {
		return nil, errors.Errorf("need at least 4 waypoints, got %d", numPoints)
	}
	a := &Aggregator{
		numPoints: numPoints,
		dt:        dt,
		gravity:   r3.Vector{Z: -gravityMagnitude},
	}
	for i, seg := range model.Segments() {
		if seg.Mass == 0 {
			continue
		}
		a.segments = append(a.segments, massSegment{
			segmentIndex: i,
			mass:         seg.Mass,
			centerOfMass: seg.CenterOfMass,
			inertia:      seg.Inertia,
		})
		a.totalMass += seg.Mass
	}
	if a.totalMass == 0 {
		return nil, errors.Errorf("robot %q has zero total mass", model.Name())
	}

	a.linkPositions = make([][]r3.Vector, len(a.segments))
	a.linkVelocities = make([][]r3.Vector, len(a.segments))
	a.linkAngularVel = make([][]r3.Vector, len(a.segments))
	for i := range a.segments {
		a.linkPositions[i] = make([]r3.Vector, numPoints)
		a.linkVelocities[i] = make([]r3.Vector, numPoints)
		a.linkAngularVel[i] = make([]r3.Vector, numPoints)
	}
	a.comPositions = make([]r3.Vector, numPoints)
	a.comVelocities = make([]r3.Vector, numPoints)
	a.comAccelerations = make([]r3.Vector, numPoints)
	a.angularMomentum = make([]r3.Vector, numPoints)
	a.torques = make([]r3.Vector, numPoints)
	a.reference = make([]spatialmath.Wrench, numPoints)
	return a, nil
}

// TotalMass returns the summed mass of all massed segments.
func (a *Aggregator) TotalMass() float64 { return a.totalMass }

// Gravity returns the gravity force vector applied to the unit-normalized (or
// configured) total mass.
func (a *Aggregator) Gravity() r3.Vector { return a.gravity }

// ComputeWrenches recomputes every per-waypoint quantity from the given segment
// poses. With includeBoundary set, the CoM positions of the boundary waypoints
// are refreshed too; derivatives always cover only the interior [1, n-2].
func (a *Aggregator) ComputeWrenches(poses [][]spatialmath.Pose, includeBoundary bool) {
	n := a.numPoints
	start, end := 1, n-2
	if includeBoundary {
		start, end = 0, n-1
	}

	for point := start; point <= end; point++ {
		a.updateCoM(point, poses)
	}

	vectorDerivatives(1, n-2, a.dt, a.comPositions, a.comVelocities, a.comAccelerations)
	for i := range a.segments {
		vectorVelocities(1, n-2, a.dt, a.linkPositions[i], a.linkVelocities[i])
	}

	invTime := 1 / a.dt
	for point := 1; point <= n-2; point++ {
		for i, seg := range a.segments {
			prev := poses[point-1][seg.segmentIndex].Rotation
			cur := poses[point][seg.segmentIndex].Rotation
			a.linkAngularVel[i][point] = spatialmath.OrientationDelta(prev, cur).Mul(invTime)
		}
	}

	for point := 1; point <= n-2; point++ {
		momentum := r3.Vector{}
		for i, seg := range a.segments {
			rel := a.linkPositions[i][point].Sub(a.comPositions[point])
			momentum = momentum.Add(rel.Cross(a.linkVelocities[i][point]).Mul(seg.mass))
			momentum = momentum.Add(seg.inertia.RotatedMulVec(poses[point][seg.segmentIndex].Rotation, a.linkAngularVel[i][point]))
		}
		a.angularMomentum[point] = momentum
	}
	vectorVelocities(1, n-2, a.dt, a.angularMomentum, a.torques)

	for point := 1; point <= n-2; point++ {
		a.reference[point] = spatialmath.Wrench{
			Force:  a.gravity,
			Torque: a.comPositions[point].Cross(a.gravity),
		}
	}
}

func (a *Aggregator) updateCoM(point int, poses [][]spatialmath.Pose) {
	com := r3.Vector{}
	for i, seg := range a.segments {
		pos := poses[point][seg.segmentIndex].TransformPoint(seg.centerOfMass)
		a.linkPositions[i][point] = pos
		com = com.Add(pos.Mul(seg.mass))
	}
	a.comPositions[point] = com.Mul(1 / a.totalMass)
}

// ReferenceWrench returns the wrench the contact forces must balance at a waypoint.
func (a *Aggregator) ReferenceWrench(point int) spatialmath.Wrench {
	return a.reference[point]
}

// CoMPosition returns the mass-weighted center of mass at a waypoint.
func (a *Aggregator) CoMPosition(point int) r3.Vector { return a.comPositions[point] }

// Snapshot assembles the full rigid-body state of one waypoint.
func (a *Aggregator) Snapshot(point int) Snapshot {
	inertialTorque := a.comPositions[point].Cross(a.comAccelerations[point]).Mul(-a.totalMass).Sub(a.torques[point])
	return Snapshot{
		CoMPosition:     a.comPositions[point],
		CoMVelocity:     a.comVelocities[point],
		CoMAcceleration: a.comAccelerations[point],
		AngularMomentum: a.angularMomentum[point],
		Torque:          a.torques[point],
		GravityWrench: spatialmath.Wrench{
			Force:  a.gravity,
			Torque: a.comPositions[point].Cross(a.gravity),
		},
		InertialWrench: spatialmath.Wrench{
			Force:  a.comAccelerations[point].Mul(-a.totalMass),
			Torque: inertialTorque,
		},
		ReferenceWrench: a.reference[point],
	}
}

// vectorVelocities fills vel over [start, end] with centered first differences.
func vectorVelocities(start, end int, dt float64, pos, vel []r3.Vector) {
	inv := 1 / (2 * dt)
	for i := start; i <= end; i++ {
		vel[i] = pos[i+1].Sub(pos[i-1]).Mul(inv)
	}
}

// vectorDerivatives fills vel and acc over [start, end] with centered first and
// second differences.
func vectorDerivatives(start, end int, dt float64, pos, vel, acc []r3.Vector) {
	invV := 1 / (2 * dt)
	invA := 1 / (dt * dt)
	for i := start; i <= end; i++ {
		vel[i] = pos[i+1].Sub(pos[i-1]).Mul(invV)
		acc[i] = pos[i+1].Add(pos[i-1]).Sub(pos[i].Mul(2)).Mul(invA)
	}
}
