package optimization

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// objectiveDeltaTolerance stops the search when the objective changes by
	// less than this between iterations.
	objectiveDeltaTolerance = 1e-7
	// gradientJump is the finite-difference step for the approximate gradients
	// fed to the quasi-Newton minimizer.
	gradientJump = 1e-6
)

// Driver packs the trajectory and contact state into the flat optimization
// vector, optionally perturbs it, and runs one derivative-free quasi-Newton
// search against an evaluation engine. All packing scratch is owned by the
// driver instance; drivers are not safe for concurrent use, matching their
// engines. Restart and retry policy belongs to the caller: Solve runs a single
// minimization per invocation.
type Driver struct {
	manager *EvaluationManager
	logger  golog.Logger

	numJoints   int
	numContacts int
	numPhases   int
	numFree     int
	numVars     int

	positions     *mat.Dense
	velocities    *mat.Dense
	activations   *mat.Dense
	waypointCosts []float64
}

// NewDriver allocates a driver over the given engine.
func NewDriver(manager *EvaluationManager, logger golog.Logger) *Driver {
	numFree := manager.numPhases - 1
	d := &Driver{
		manager:       manager,
		logger:        logger,
		numJoints:     manager.numJoints,
		numContacts:   manager.numContacts,
		numPhases:     manager.numPhases,
		numFree:       numFree,
		numVars:       manager.numContacts + numFree*(2*manager.numJoints+manager.numContacts),
		positions:     mat.NewDense(numFree, manager.numJoints, nil),
		velocities:    mat.NewDense(numFree, manager.numJoints, nil),
		waypointCosts: make([]float64, manager.numPoints),
	}
	if manager.numContacts > 0 {
		d.activations = mat.NewDense(manager.numPhases, manager.numContacts, nil)
	} else {
		d.activations = mat.NewDense(1, 1, nil)
	}
	return d
}

// NumVariables returns the flat optimization vector length.
func (d *Driver) NumVariables() int { return d.numVars }

// Pack copies the engine trajectory's free blocks into the flat vector:
// the phase-0 contact activations, then for each free keyframe its joint
// positions, joint velocities, and phase activations.
func (d *Driver) Pack(vars []float64) error {
	if len(vars) != d.numVars {
		return errors.Errorf("variable vector length %d, want %d", len(vars), d.numVars)
	}
	traj := d.manager.GroupTrajectory()
	freePoints := traj.FreePoints()
	freeVels := traj.FreeVelocities()
	contacts := traj.Contacts()

	w := 0
	for c := 0; c < d.numContacts; c++ {
		vars[w] = contacts.At(0, c)
		w++
	}
	for i := 1; i < d.numPhases; i++ {
		for j := 0; j < d.numJoints; j++ {
			vars[w] = freePoints.At(i, j)
			w++
		}
		for j := 0; j < d.numJoints; j++ {
			vars[w] = freeVels.At(i, j)
			w++
		}
		for c := 0; c < d.numContacts; c++ {
			vars[w] = contacts.At(i, c)
			w++
		}
	}
	return nil
}

// Unpack splits the flat vector into the driver-owned parameter matrices.
// Raw contact activation entries are folded through an absolute value so the
// unconstrained search can roam negative while the engine only ever sees
// non-negative activations.
func (d *Driver) Unpack(vars []float64) (positions, velocities, activations *mat.Dense) {
	r := 0
	for c := 0; c < d.numContacts; c++ {
		d.activations.Set(0, c, math.Abs(vars[r]))
		r++
	}
	for i := 0; i < d.numFree; i++ {
		for j := 0; j < d.numJoints; j++ {
			d.positions.Set(i, j, vars[r])
			r++
		}
		for j := 0; j < d.numJoints; j++ {
			d.velocities.Set(i, j, vars[r])
			r++
		}
		for c := 0; c < d.numContacts; c++ {
			d.activations.Set(i+1, c, math.Abs(vars[r]))
			r++
		}
	}
	return d.positions, d.velocities, d.activations
}

// Perturb adds zero-mean unit-covariance gaussian noise scaled by the configured
// factor, nudging the search out of the current local minimum.
func (d *Driver) Perturb(vars []float64) {
	noise := distuv.Normal{Mu: 0, Sigma: 1}
	scale := d.manager.params.NoiseScale
	for i := range vars {
		vars[i] += scale * noise.Rand()
	}
}

func (d *Driver) evaluate(vars []float64) (float64, error) {
	positions, velocities, activations := d.Unpack(vars)
	return d.manager.Evaluate(positions, velocities, activations, d.waypointCosts)
}

type solveReturn struct {
	solution []float64
	score    float64
	err      error
}

// Solve runs one quasi-Newton minimization over the engine's current trajectory
// and leaves the best found candidate written into the engine. It returns the
// final cost. Cancelling the context force-stops the minimizer.
func (d *Driver) Solve(ctx context.Context, addNoise bool) (float64, error) {
	vars := make([]float64, d.numVars)
	if err := d.Pack(vars); err != nil {
		return 0, err
	}
	if addNoise {
		d.Perturb(vars)
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_LBFGS, uint(d.numVars))
	if err != nil {
		return 0, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	var evalErr error
	objective := func(x, gradient []float64) float64 {
		c, err := d.evaluate(x)
		if err != nil {
			evalErr = multierr.Combine(evalErr, err)
			if ferr := opt.ForceStop(); ferr != nil {
				d.logger.Errorw("forcestop error", "error", ferr)
			}
			return 0
		}
		for i := range gradient {
			x[i] += gradientJump
			c2, err := d.evaluate(x)
			x[i] -= gradientJump
			if err != nil {
				evalErr = multierr.Combine(evalErr, err)
				if ferr := opt.ForceStop(); ferr != nil {
					d.logger.Errorw("forcestop error", "error", ferr)
				}
				return 0
			}
			gradient[i] = (c2 - c) / gradientJump
		}
		return c
	}

	err = multierr.Combine(
		opt.SetMinObjective(objective),
		opt.SetFtolAbs(objectiveDeltaTolerance),
		opt.SetMaxEval(d.manager.params.MaxIterations),
	)
	if err != nil {
		return 0, errors.Wrap(err, "nlopt setup error")
	}

	solveChan := make(chan *solveReturn, 1)
	goutils.PanicCapturingGo(func() {
		solution, score, optErr := opt.Optimize(vars)
		solveChan <- &solveReturn{solution, score, optErr}
	})

	var result *solveReturn
	select {
	case <-ctx.Done():
		err = multierr.Combine(evalErr, opt.ForceStop())
		<-solveChan
		return 0, multierr.Combine(err, ctx.Err())
	case result = <-solveChan:
	}
	if evalErr != nil {
		return 0, evalErr
	}
	if result.err != nil {
		// nlopt errors on rounding-limited progress are not fatal to the
		// candidate; keep the last vector it produced if there is one
		d.logger.Debugw("nlopt finished with error", "error", result.err)
	}
	if result.solution == nil {
		return 0, multierr.Combine(result.err, errNoSolution)
	}

	// write the winning candidate back through the engine so the trajectory
	// buffers hold the solution state
	final, err := d.evaluate(result.solution)
	if err != nil {
		return 0, err
	}
	d.manager.Accumulator().Log(d.logger, d.manager.Iteration())
	return final, nil
}
