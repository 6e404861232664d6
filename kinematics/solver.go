package kinematics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/TheCamusean/itomp/spatialmath"
)

// Solver is the kinematics port: it maps a full robot joint array to world-frame
// segment positions, joint axes, and poses. Implementations must be deterministic
// for identical input. The output slices are caller-owned scratch sized to the
// segment count; solvers fill them in place.
type Solver interface {
	// FullKinematics recomputes every segment.
	FullKinematics(joints []float64, positions, axes []r3.Vector, poses []spatialmath.Pose) error
	// PartialKinematics may reuse poses of segments unaffected by the changed
	// joints; callers must pass the slices produced by an earlier call.
	PartialKinematics(joints []float64, positions, axes []r3.Vector, poses []spatialmath.Pose) error
}

// Chain is a reference Solver that walks the model's segment tree directly.
// Its partial pass is a full recomputation; the interface contract still holds.
type Chain struct {
	model *RobotModel
}

// NewChainSolver returns a solver over the given model.
func NewChainSolver(model *RobotModel) *Chain {
	return &Chain{model: model}
}

// FullKinematics implements Solver.
func (c *Chain) FullKinematics(joints []float64, positions, axes []r3.Vector, poses []spatialmath.Pose) error {
	n := c.model.NumSegments()
	if len(joints) != c.model.NumJoints() {
		return errors.Errorf("joint array length %d does not match model joint count %d", len(joints), c.model.NumJoints())
	}
	if len(positions) != n || len(axes) != n || len(poses) != n {
		return errors.Errorf("output slices must have length %d", n)
	}
	for i, seg := range c.model.Segments() {
		parent := spatialmath.NewZeroPose()
		if seg.Parent >= 0 {
			parent = poses[seg.Parent]
		}
		pose := spatialmath.Compose(parent, seg.Offset)
		switch seg.Joint {
		case JointRevolute:
			pose = spatialmath.Compose(pose, spatialmath.NewPose(r3.Vector{}, spatialmath.R4AAToQuat(seg.Axis, joints[seg.JointIndex])))
		case JointPrismatic:
			pose = spatialmath.Compose(pose, spatialmath.NewPose(seg.Axis.Normalize().Mul(joints[seg.JointIndex]), quat.Number{Real: 1}))
		case JointFixed:
		}
		poses[i] = pose
		positions[i] = pose.Point
		if seg.Joint == JointFixed {
			axes[i] = r3.Vector{}
		} else {
			axes[i] = pose.RotateVector(seg.Axis.Normalize())
		}
	}
	return nil
}

// PartialKinematics implements Solver.
func (c *Chain) PartialKinematics(joints []float64, positions, axes []r3.Vector, poses []spatialmath.Pose) error {
	return c.FullKinematics(joints, positions, axes, poses)
}
