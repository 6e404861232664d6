// Package collision defines the collision port consumed during trajectory
// evaluation and a sphere-world checker implementing it.
package collision

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/spatialmath"
)

// Collision is a pair of names of geometries in collision, the Euclidean distance
// one would have to be moved to resolve the contact, and where it happened.
type Collision struct {
	Name1            string
	Name2            string
	PenetrationDepth float64
	Location         r3.Vector
}

// Checker is the collision port. An empty result explicitly means "no collision";
// any inability to determine collisions must surface as an error, never as a
// guessed result.
type Checker interface {
	CheckCollisions(jointPositions []float64) ([]Collision, error)
}

// RobotSphere attaches a collision sphere to a robot link.
type RobotSphere struct {
	LinkName string
	Offset   r3.Vector
	Radius   float64
}

// Sphere is a fixed world obstacle.
type Sphere struct {
	Name   string
	Center r3.Vector
	Radius float64
}

type boundSphere struct {
	segmentIndex int
	name         string
	offset       r3.Vector
	radius       float64
}

// SphereWorld checks a sphere-decorated robot against fixed sphere obstacles.
// It runs its own forward kinematics, so it accepts full joint configurations
// per the port contract.
type SphereWorld struct {
	solver    kinematics.Solver
	robot     []boundSphere
	obstacles []Sphere

	positions []r3.Vector
	axes      []r3.Vector
	poses     []spatialmath.Pose
}

// NewSphereWorld resolves robot sphere attachments against the model.
func NewSphereWorld(model *kinematics.RobotModel, robot []RobotSphere, obstacles []Sphere) (*SphereWorld, error) {
	w := &SphereWorld{
		solver:    kinematics.NewChainSolver(model),
		obstacles: obstacles,
		positions: make([]r3.Vector, model.NumSegments()),
		axes:      make([]r3.Vector, model.NumSegments()),
		poses:     make([]spatialmath.Pose, model.NumSegments()),
	}
	for _, rs := range robot {
		idx, err := model.SegmentIndex(rs.LinkName)
		if err != nil {
			return nil, errors.Wrap(err, "collision sphere")
		}
		w.robot = append(w.robot, boundSphere{segmentIndex: idx, name: rs.LinkName, offset: rs.Offset, radius: rs.Radius})
	}
	return w, nil
}

// CheckCollisions implements Checker.
func (w *SphereWorld) CheckCollisions(jointPositions []float64) ([]Collision, error) {
	if err := w.solver.FullKinematics(jointPositions, w.positions, w.axes, w.poses); err != nil {
		return nil, errors.Wrap(err, "collision kinematics")
	}
	var collisions []Collision
	for _, rs := range w.robot {
		center := w.poses[rs.segmentIndex].TransformPoint(rs.offset)
		for _, ob := range w.obstacles {
			sep := center.Sub(ob.Center)
			depth := rs.radius + ob.Radius - sep.Norm()
			if depth <= 0 {
				continue
			}
			collisions = append(collisions, Collision{
				Name1:            rs.name,
				Name2:            ob.Name,
				PenetrationDepth: depth,
				Location:         ob.Center.Add(sep.Mul(0.5)),
			})
		}
	}
	return collisions, nil
}
