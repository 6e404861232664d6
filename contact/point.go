package contact

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/spatialmath"
)

// Point is an immutable binding of a named end-effector link to its kinematic
// segment. Positions, frames, and violation signals are derived fresh from the
// rolled-out segment poses on every evaluation; nothing is cached across
// evaluations.
type Point struct {
	name          string
	linkName      string
	segmentIndex  int
	parentSegment int
}

// NewPoint resolves a contact definition against a robot model.
func NewPoint(def kinematics.ContactDef, model *kinematics.RobotModel) (*Point, error) {
	idx, err := model.SegmentIndex(def.LinkName)
	if err != nil {
		return nil, errors.Wrapf(err, "contact %q", def.Name)
	}
	parent := model.ParentSegment(idx)
	if parent < 0 {
		parent = idx
	}
	return &Point{name: def.Name, linkName: def.LinkName, segmentIndex: idx, parentSegment: parent}, nil
}

// Name returns the contact's name.
func (p *Point) Name() string { return p.name }

// LinkName returns the bound link's name.
func (p *Point) LinkName() string { return p.linkName }

// SegmentIndex returns the bound segment's index in the robot model.
func (p *Point) SegmentIndex() int { return p.segmentIndex }

// Position returns the contact's world position at a waypoint, given the
// rolled-out per-waypoint segment poses.
func (p *Point) Position(point int, poses [][]spatialmath.Pose) r3.Vector {
	return poses[point][p.segmentIndex].Point
}

// Frame returns the contact's world pose at a waypoint.
func (p *Point) Frame(point int, poses [][]spatialmath.Pose) spatialmath.Pose {
	return poses[point][p.segmentIndex]
}

// ParentFrame returns the world pose of the contact segment's parent at a
// waypoint. The parent's local up axis defines the contact's friction cone.
func (p *Point) ParentFrame(point int, poses [][]spatialmath.Pose) spatialmath.Pose {
	return poses[point][p.parentSegment]
}

// UpdateViolations writes the contact violation and contact-point velocity for
// waypoints start..end inclusive. Velocity uses centered differences at step dt;
// violations measure offset from the ground surface and frame tilt away from the
// surface normal.
func (p *Point) UpdateViolations(
	start, end int,
	dt float64,
	ground GroundPlane,
	poses [][]spatialmath.Pose,
	violations []Violation,
	velocities []r3.Vector,
) {
	for point := start; point <= end; point++ {
		pose := poses[point][p.segmentIndex]
		offset := pose.Point.Sub(ground.Closest(pose.Point))
		up := pose.RotateVector(r3.Vector{Z: 1})
		violations[point] = Violation{
			Offset: offset,
			Tilt:   clampedAcos(up.Dot(ground.Normal(pose.Point))),
		}

		prev := poses[point-1][p.segmentIndex].Point
		next := poses[point+1][p.segmentIndex].Point
		velocities[point] = next.Sub(prev).Mul(1 / (2 * dt))
	}
}
