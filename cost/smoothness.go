// Package cost builds the per-term trajectory costs and combines them into the
// scalar objective and per-waypoint breakdown consumed by the optimizer.
package cost

import (
	"gonum.org/v1/gonum/mat"
)

const diffRuleLength = 7

// Centered finite-difference stencils for velocity, acceleration, and jerk.
var diffRules = [3][diffRuleLength]float64{
	{0, 0, -2.0 / 6.0, -3.0 / 6.0, 6.0 / 6.0, -1.0 / 6.0, 0},
	{0, -1.0 / 12.0, 16.0 / 12.0, -30.0 / 12.0, 16.0 / 12.0, -1.0 / 12.0, 0},
	{0, 1.0 / 12.0, -17.0 / 12.0, 46.0 / 12.0, -46.0 / 12.0, 17.0 / 12.0, -1.0 / 12.0},
}

// DerivativeWeights scales the squared velocity, acceleration, and jerk penalties
// of one joint.
type DerivativeWeights struct {
	Velocity     float64
	Acceleration float64
	Jerk         float64
}

// stencilTerm is one weighted derivative penalty: a difference matrix and the
// dt-corrected scale its squared residuals carry.
type stencilTerm struct {
	scale float64
	diff  *mat.Dense
}

// SmoothnessCost is a fixed positive-semidefinite quadratic form over one joint's
// waypoint column, derived once from the discretization and the joint's
// derivative weights. The form is kept factored as Σ scale·‖D q‖² + ridge·‖q‖²
// rather than assembled into a single matrix: the 1/dt⁶-scaled jerk entries are
// large enough that the assembled form's cancellation noise swamps the cost of a
// near-stationary column, while squared residuals stay exact and non-negative.
type SmoothnessCost struct {
	terms []stencilTerm
	ridge float64
	norm  float64
	n     int

	resid *mat.VecDense
}

// NewSmoothnessCost assembles the quadratic form for a trajectory of n waypoints
// at step dt. The ridge keeps the form strictly positive definite.
func NewSmoothnessCost(n int, dt float64, weights DerivativeWeights, ridge float64) *SmoothnessCost {
	s := &SmoothnessCost{ridge: ridge, norm: 1, n: n, resid: mat.NewVecDense(n, nil)}
	multipliers := [3]float64{weights.Velocity, weights.Acceleration, weights.Jerk}
	for d := 0; d < 3; d++ {
		if multipliers[d] == 0 {
			continue
		}
		// 1/dt^(2(d+1)) converts the unit-step stencil to the real time step
		scale := multipliers[d]
		for k := 0; k <= d; k++ {
			scale /= dt * dt
		}
		s.terms = append(s.terms, stencilTerm{scale: scale, diff: differenceMatrix(n, d)})
	}
	return s
}

// differenceMatrix builds the n×n matrix applying derivative stencil d to a
// waypoint column. Rows whose stencil would run off the trajectory are zero.
func differenceMatrix(n, d int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	half := diffRuleLength / 2
	for row := half; row < n-half; row++ {
		for k := 0; k < diffRuleLength; k++ {
			m.Set(row, row-half+k, diffRules[d][k])
		}
	}
	return m
}

// MaxQuadValue returns the largest diagonal entry of the quadratic form, the
// joint's numerical scale.
func (s *SmoothnessCost) MaxQuadValue() float64 {
	maxVal := 0.0
	for i := 0; i < s.n; i++ {
		v := s.ridge
		for _, term := range s.terms {
			colSq := 0.0
			for r := 0; r < s.n; r++ {
				e := term.diff.At(r, i)
				colSq += e * e
			}
			v += term.scale * colSq
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal * s.norm
}

// Scale divides the quadratic form by the given factor. Dividing every joint by
// the largest per-joint scale keeps any one joint from numerically dominating.
func (s *SmoothnessCost) Scale(factor float64) {
	if factor == 0 {
		return
	}
	s.norm /= factor
}

// Cost evaluates qᵀ A q for one joint's waypoint column.
func (s *SmoothnessCost) Cost(column []float64) float64 {
	v := mat.NewVecDense(s.n, column)
	total := 0.0
	for _, term := range s.terms {
		s.resid.MulVec(term.diff, v)
		total += term.scale * mat.Dot(s.resid, s.resid)
	}
	if s.ridge != 0 {
		total += s.ridge * mat.Dot(v, v)
	}
	return total * s.norm
}
