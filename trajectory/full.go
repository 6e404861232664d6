package trajectory

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Full is the full-robot trajectory. It shares the group trajectory's time
// discretization; joints outside the planning group keep whatever values the
// trajectory was seeded with.
type Full struct {
	numPoints int
	numJoints int
	dt        float64
	points    *mat.Dense
}

// NewFull allocates a full-robot trajectory matching the group trajectory's
// waypoint count.
func NewFull(group *Trajectory, numJoints int) (*Full, error) {
	if numJoints <= 0 {
		return nil, errors.New("full trajectory requires at least one joint")
	}
	return &Full{
		numPoints: group.NumPoints(),
		numJoints: numJoints,
		dt:        group.Discretization(),
		points:    mat.NewDense(group.NumPoints(), numJoints, nil),
	}, nil
}

// NumPoints returns the waypoint count.
func (f *Full) NumPoints() int { return f.numPoints }

// NumJoints returns the full robot joint count.
func (f *Full) NumJoints() int { return f.numJoints }

// Value returns the joint value at a waypoint.
func (f *Full) Value(point, joint int) float64 {
	return f.points.At(point, joint)
}

// SetValue overwrites a joint value at a waypoint.
func (f *Full) SetValue(point, joint int, v float64) {
	f.points.Set(point, joint, v)
}

// FillConstant seeds every waypoint with the given full configuration.
func (f *Full) FillConstant(configuration []float64) error {
	if len(configuration) != f.numJoints {
		return errors.Errorf("configuration length %d does not match joint count %d", len(configuration), f.numJoints)
	}
	for i := 0; i < f.numPoints; i++ {
		f.points.SetRow(i, configuration)
	}
	return nil
}

// UpdateFromGroup resynchronizes the full trajectory from the group trajectory
// through the fixed joint-index embedding. It must be called after every
// parameter write to the group trajectory.
func (f *Full) UpdateFromGroup(group *Trajectory, embedding []int) error {
	if len(embedding) != group.NumJoints() {
		return errors.Errorf("embedding length %d does not match group joint count %d", len(embedding), group.NumJoints())
	}
	if group.NumPoints() != f.numPoints {
		return errors.Errorf("group waypoint count %d does not match %d", group.NumPoints(), f.numPoints)
	}
	for i := 0; i < f.numPoints; i++ {
		for j, fullIndex := range embedding {
			f.points.Set(i, fullIndex, group.Value(i, j))
		}
	}
	return nil
}

// Point copies waypoint i's full configuration into out.
func (f *Full) Point(i int, out []float64) {
	mat.Row(out, i, f.points)
}
