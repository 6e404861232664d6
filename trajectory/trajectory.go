// Package trajectory holds the dual group-local/full-robot joint trajectory
// representation used by the optimizer: a uniformly discretized waypoint matrix
// whose interior is driven by free keyframes at contact-phase boundaries.
package trajectory

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Trajectory is the group-local joint trajectory. Waypoints are stored as a
// numPoints × numJoints matrix at fixed discretization. The trajectory is
// partitioned into numPhases uniform contact phases of stride waypoints each;
// the keyframes at phase boundaries, together with per-keyframe velocities, fully
// determine the interior waypoints through cubic Hermite interpolation. Contact
// activations are piecewise-constant per phase.
type Trajectory struct {
	numJoints   int
	numContacts int
	numPhases   int
	stride      int
	numPoints   int
	dt          float64

	points         *mat.Dense // numPoints × numJoints
	freePoints     *mat.Dense // (numPhases+1) × numJoints, keyframes at phase boundaries
	freeVelocities *mat.Dense // (numPhases+1) × numJoints
	contacts       *mat.Dense // (numPhases+1) × numContacts
}

// New allocates a trajectory. The waypoint count is numPhases*stride + 1.
func New(numJoints, numContacts, numPhases, stride int, dt float64) (*Trajectory, error) {
	if numJoints <= 0 {
		return nil, errors.New("trajectory requires at least one joint")
	}
	if numPhases < 2 || stride < 1 {
		return nil, errors.Errorf("invalid phase partition: %d phases of stride %d", numPhases, stride)
	}
	if dt <= 0 {
		return nil, errors.Errorf("discretization must be positive, got %f", dt)
	}
	numPoints := numPhases*stride + 1
	t := &Trajectory{
		numJoints:      numJoints,
		numContacts:    numContacts,
		numPhases:      numPhases,
		stride:         stride,
		numPoints:      numPoints,
		dt:             dt,
		points:         mat.NewDense(numPoints, numJoints, nil),
		freePoints:     mat.NewDense(numPhases+1, numJoints, nil),
		freeVelocities: mat.NewDense(numPhases+1, numJoints, nil),
	}
	if numContacts > 0 {
		t.contacts = mat.NewDense(numPhases+1, numContacts, nil)
	}
	return t, nil
}

// NumPoints returns the waypoint count.
func (t *Trajectory) NumPoints() int { return t.numPoints }

// NumJoints returns the group joint count.
func (t *Trajectory) NumJoints() int { return t.numJoints }

// NumContacts returns the contact count.
func (t *Trajectory) NumContacts() int { return t.numContacts }

// NumContactPhases returns the number of uniform contact phases.
func (t *Trajectory) NumContactPhases() int { return t.numPhases }

// PhaseStride returns the number of waypoints per contact phase.
func (t *Trajectory) PhaseStride() int { return t.stride }

// Discretization returns the waypoint time step.
func (t *Trajectory) Discretization() float64 { return t.dt }

// Value returns the joint value at a waypoint.
func (t *Trajectory) Value(point, joint int) float64 {
	return t.points.At(point, joint)
}

// SetValue overwrites the joint value at a waypoint. The free keyframes are the
// source of truth for the interior; direct writes are for anchors and tests.
func (t *Trajectory) SetValue(point, joint int, v float64) {
	t.points.Set(point, joint, v)
}

// FreePoints returns the mutable keyframe position block. Row k is the keyframe
// at waypoint k*stride; rows 1..numPhases-1 are the optimizer's free variables.
func (t *Trajectory) FreePoints() *mat.Dense { return t.freePoints }

// FreeVelocities returns the mutable keyframe velocity block.
func (t *Trajectory) FreeVelocities() *mat.Dense { return t.freeVelocities }

// Contacts returns the mutable contact activation block, one row per phase
// boundary. Row p holds the activation of phase p; the final row belongs to the
// goal anchor and is not optimized.
func (t *Trajectory) Contacts() *mat.Dense { return t.contacts }

// ContactPhase maps a waypoint index to its contact phase.
func (t *Trajectory) ContactPhase(point int) int {
	phase := point / t.stride
	if phase > t.numPhases {
		phase = t.numPhases
	}
	return phase
}

// ContactValue returns the activation of a contact during a phase.
func (t *Trajectory) ContactValue(phase, contact int) float64 {
	return t.contacts.At(phase, contact)
}

// KeyframeIndex returns the waypoint index of keyframe k.
func (t *Trajectory) KeyframeIndex(k int) int { return k * t.stride }

// SetKeyframe writes a keyframe's position and velocity rows.
func (t *Trajectory) SetKeyframe(k int, positions, velocities []float64) {
	t.freePoints.SetRow(k, positions)
	t.freeVelocities.SetRow(k, velocities)
}

// UpdateFromFreePoints rolls the keyframe blocks out into the waypoint matrix
// with a cubic Hermite segment per contact phase, matching keyframe positions and
// velocities at every phase boundary.
func (t *Trajectory) UpdateFromFreePoints() {
	span := float64(t.stride) * t.dt
	for k := 0; k < t.numPhases; k++ {
		base := k * t.stride
		for j := 0; j < t.numJoints; j++ {
			p0 := t.freePoints.At(k, j)
			p1 := t.freePoints.At(k+1, j)
			v0 := t.freeVelocities.At(k, j) * span
			v1 := t.freeVelocities.At(k+1, j) * span
			for s := 0; s < t.stride; s++ {
				u := float64(s) / float64(t.stride)
				u2 := u * u
				u3 := u2 * u
				val := (2*u3-3*u2+1)*p0 + (u3-2*u2+u)*v0 + (-2*u3+3*u2)*p1 + (u3-u2)*v1
				t.points.Set(base+s, j, val)
			}
		}
	}
	// final boundary
	for j := 0; j < t.numJoints; j++ {
		t.points.Set(t.numPoints-1, j, t.freePoints.At(t.numPhases, j))
	}
}
