package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Wrench is a 6D force/torque pair.
type Wrench struct {
	Force  r3.Vector
	Torque r3.Vector
}

// Add returns the component-wise sum of two wrenches.
func (w Wrench) Add(other Wrench) Wrench {
	return Wrench{
		Force:  w.Force.Add(other.Force),
		Torque: w.Torque.Add(other.Torque),
	}
}

// Norm returns the 2-norm of the wrench viewed as a 6-vector.
func (w Wrench) Norm() float64 {
	return math.Sqrt(w.Force.Norm2() + w.Torque.Norm2())
}
