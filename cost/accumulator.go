package cost

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// Weights scales the four cost terms of the composite objective.
type Weights struct {
	Smoothness       float64
	ContactInvariant float64
	PhysicsViolation float64
	Collision        float64
}

// Accumulator collects per-waypoint term values for one evaluation and combines
// them into the scalar objective, the per-waypoint breakdown, and the
// feasibility flag. It is mutated once per evaluation and read once by the
// driver; it is not safe for concurrent use.
type Accumulator struct {
	numPoints int
	weights   Weights
	tolerance float64

	contactInvariant []float64
	physicsViolation []float64
	collision        []float64
	smoothness       float64
}

// NewAccumulator allocates an accumulator for the given waypoint count. The
// tolerance bounds each weighted term total for the trajectory to count as
// feasible.
func NewAccumulator(numPoints int, weights Weights, tolerance float64) (*Accumulator, error) {
	if numPoints <= 0 {
		return nil, errors.Errorf("accumulator needs a positive waypoint count, got %d", numPoints)
	}
	return &Accumulator{
		numPoints:        numPoints,
		weights:          weights,
		tolerance:        tolerance,
		contactInvariant: make([]float64, numPoints),
		physicsViolation: make([]float64, numPoints),
		collision:        make([]float64, numPoints),
	}, nil
}

// Reset zeroes all term values.
func (a *Accumulator) Reset() {
	for i := 0; i < a.numPoints; i++ {
		a.contactInvariant[i] = 0
		a.physicsViolation[i] = 0
		a.collision[i] = 0
	}
	a.smoothness = 0
}

// SetContactInvariant records the contact-invariant term of one waypoint.
func (a *Accumulator) SetContactInvariant(point int, v float64) { a.contactInvariant[point] = v }

// SetPhysicsViolation records the physics-violation term of one waypoint.
func (a *Accumulator) SetPhysicsViolation(point int, v float64) { a.physicsViolation[point] = v }

// SetCollision records the collision term of one waypoint.
func (a *Accumulator) SetCollision(point int, v float64) { a.collision[point] = v }

// SetSmoothness records the whole-trajectory smoothness term.
func (a *Accumulator) SetSmoothness(v float64) { a.smoothness = v }

// WaypointCost returns the weighted per-waypoint cost; the trajectory-level
// smoothness term is amortized uniformly across waypoints.
func (a *Accumulator) WaypointCost(point int) float64 {
	return a.weights.ContactInvariant*a.contactInvariant[point] +
		a.weights.PhysicsViolation*a.physicsViolation[point] +
		a.weights.Collision*a.collision[point] +
		a.weights.Smoothness*a.smoothness/float64(a.numPoints)
}

// TrajectoryCost returns the scalar aggregate cost.
func (a *Accumulator) TrajectoryCost() float64 {
	total := a.weights.Smoothness * a.smoothness
	for i := 0; i < a.numPoints; i++ {
		total += a.weights.ContactInvariant*a.contactInvariant[i] +
			a.weights.PhysicsViolation*a.physicsViolation[i] +
			a.weights.Collision*a.collision[i]
	}
	return total
}

// termTotals returns the weighted totals of the four terms.
func (a *Accumulator) termTotals() (smoothness, contactInvariant, physicsViolation, collision float64) {
	for i := 0; i < a.numPoints; i++ {
		contactInvariant += a.contactInvariant[i]
		physicsViolation += a.physicsViolation[i]
		collision += a.collision[i]
	}
	return a.weights.Smoothness * a.smoothness,
		a.weights.ContactInvariant * contactInvariant,
		a.weights.PhysicsViolation * physicsViolation,
		a.weights.Collision * collision
}

// IsFeasible reports whether every weighted term total is under the configured
// tolerance.
func (a *Accumulator) IsFeasible() bool {
	sm, ci, pv, col := a.termTotals()
	return sm <= a.tolerance && ci <= a.tolerance && pv <= a.tolerance && col <= a.tolerance
}

// Log emits the term totals for one optimizer iteration.
func (a *Accumulator) Log(logger golog.Logger, iteration int) {
	sm, ci, pv, col := a.termTotals()
	logger.Debugw("trajectory cost",
		"iteration", iteration,
		"total", a.TrajectoryCost(),
		"smoothness", sm,
		"contact_invariant", ci,
		"physics_violation", pv,
		"collision", col,
		"feasible", a.IsFeasible(),
	)
}
