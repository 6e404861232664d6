package contact

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/TheCamusean/itomp/spatialmath"
)

const (
	// Tikhonov floor keeping the normal equations nonsingular.
	baseRegularization = 1e-6
	// activation-gated Tikhonov scale: near-zero activations see a large
	// penalty on any force magnitude.
	activationRegularization = 1e-3
	activationEpsilon        = 1e-9

	maxProjectedGradientIters = 64
	projectedGradientTol      = 1e-12
)

// ForceSolver distributes contact forces at a single waypoint so that their
// summed wrench balances a target wrench, subject to per-contact friction cones.
//
// The problem solved is the small constrained least squares
//
//	min_f  ‖A f + w‖² + Σᵢ λᵢ‖fᵢ‖²
//	s.t.   fᵢ in the friction cone about its parent frame's up axis,
//	       fᵢ·nᵢ ≤ normalScale·activationᵢ
//
// where A stacks [I; skew(pᵢ)] blocks, w is the target wrench, and
// λᵢ = λ₀ + λa/activationᵢ². Activations gate engagement continuously: the cone
// cap shrinks to the zero force as activation goes to zero, so all-zero
// activation waypoints still yield a well-defined (zero) solution.
type ForceSolver struct {
	// NormalScale bounds the normal force a contact may carry per unit of
	// activation. With unit-normalized gravity the default of 1.0 lets a
	// contact with activation 1 carry the robot's whole weight.
	NormalScale float64
}

// NewForceSolver returns a solver with default scaling.
func NewForceSolver() *ForceSolver {
	return &ForceSolver{NormalScale: 1.0}
}

// Solve fills forces with the per-contact force distribution for one waypoint.
// All slices must have equal length; forces is caller-owned scratch.
func (s *ForceSolver) Solve(
	frictionCoefficient float64,
	positions []r3.Vector,
	target spatialmath.Wrench,
	activations []float64,
	parentFrames []spatialmath.Pose,
	forces []r3.Vector,
) error {
	n := len(positions)
	if len(activations) != n || len(parentFrames) != n || len(forces) != n {
		return errors.Errorf("mismatched contact slice lengths: %d positions, %d activations, %d frames, %d forces",
			n, len(activations), len(parentFrames), len(forces))
	}
	if n == 0 {
		return nil
	}

	axes := make([]r3.Vector, n)
	caps := make([]float64, n)
	for i := range axes {
		axes[i] = parentFrames[i].RotateVector(r3.Vector{Z: 1})
		if norm := axes[i].Norm(); norm > 0 {
			axes[i] = axes[i].Mul(1 / norm)
		} else {
			axes[i] = r3.Vector{Z: 1}
		}
		act := activations[i]
		if act < 0 {
			act = 0
		}
		caps[i] = s.NormalScale * act
	}

	a := mat.NewDense(6, 3*n, nil)
	for i, p := range positions {
		col := 3 * i
		a.Set(0, col, 1)
		a.Set(1, col+1, 1)
		a.Set(2, col+2, 1)
		// skew(p) block mapping force to moment about the origin
		a.Set(3, col+1, -p.Z)
		a.Set(3, col+2, p.Y)
		a.Set(4, col, p.Z)
		a.Set(4, col+2, -p.X)
		a.Set(5, col, -p.Y)
		a.Set(5, col+1, p.X)
	}
	b := mat.NewVecDense(6, []float64{
		-target.Force.X, -target.Force.Y, -target.Force.Z,
		-target.Torque.X, -target.Torque.Y, -target.Torque.Z,
	})

	lambda := make([]float64, n)
	for i, act := range activations {
		lambda[i] = baseRegularization + activationRegularization/(act*act+activationEpsilon)
	}

	// warm start: activation-regularized unconstrained least squares
	var ata mat.Dense
	ata.Mul(a.T(), a)
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			d := 3*i + k
			ata.Set(d, d, ata.At(d, d)+lambda[i])
		}
	}
	var atb mat.VecDense
	atb.MulVec(a.T(), b)
	f := mat.NewVecDense(3*n, nil)
	if err := f.SolveVec(&ata, &atb); err != nil {
		// regularization keeps the system nonsingular; treat failure as degenerate
		return errors.Wrap(err, "contact force normal equations")
	}
	for i := range forces {
		forces[i] = projectCone(vecBlock(f, i), axes[i], frictionCoefficient, caps[i])
	}

	// projected gradient refinement of the constrained problem
	step := 1.0 / gradientLipschitz(&ata)
	grad := mat.NewVecDense(3*n, nil)
	tmp := mat.NewVecDense(3*n, nil)
	for iter := 0; iter < maxProjectedGradientIters; iter++ {
		for i, fc := range forces {
			f.SetVec(3*i, fc.X)
			f.SetVec(3*i+1, fc.Y)
			f.SetVec(3*i+2, fc.Z)
		}
		grad.MulVec(&ata, f)
		grad.SubVec(grad, &atb)
		tmp.AddScaledVec(f, -step, grad)

		delta := 0.0
		for i := range forces {
			next := projectCone(vecBlock(tmp, i), axes[i], frictionCoefficient, caps[i])
			delta += next.Sub(forces[i]).Norm2()
			forces[i] = next
		}
		if delta < projectedGradientTol {
			break
		}
	}
	return nil
}

func vecBlock(v *mat.VecDense, i int) r3.Vector {
	return r3.Vector{X: v.AtVec(3 * i), Y: v.AtVec(3*i + 1), Z: v.AtVec(3*i + 2)}
}

// gradientLipschitz bounds the largest eigenvalue of the quadratic form by its trace.
func gradientLipschitz(ata *mat.Dense) float64 {
	r, _ := ata.Dims()
	tr := 0.0
	for i := 0; i < r; i++ {
		tr += ata.At(i, i)
	}
	if tr <= 0 {
		return 1
	}
	return tr
}

// projectCone projects a force onto the friction cone about the unit axis, with
// the normal component capped at maxNormal. A zero cap collapses the cone to the
// zero force.
func projectCone(f, axis r3.Vector, mu, maxNormal float64) r3.Vector {
	fn := f.Dot(axis)
	ft := f.Sub(axis.Mul(fn))
	ftNorm := ft.Norm()

	switch {
	case ftNorm <= mu*fn:
		// inside the cone
	case mu*ftNorm <= -fn:
		return r3.Vector{}
	default:
		scale := (fn + mu*ftNorm) / (1 + mu*mu)
		fn = scale
		if ftNorm > 0 {
			ft = ft.Mul(mu * scale / ftNorm)
		}
		ftNorm = mu * scale
	}

	if fn > maxNormal {
		fn = maxNormal
		if ftNorm > mu*maxNormal && ftNorm > 0 {
			ft = ft.Mul(mu * maxNormal / ftNorm)
		}
	}
	if fn <= 0 {
		return r3.Vector{}
	}
	return axis.Mul(fn).Add(ft)
}
