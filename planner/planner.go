// Package planner is the host-facing surface: it seeds a trajectory between a
// start and goal configuration, runs one optimization pass, and hands back the
// final full-robot trajectory with a feasibility flag.
package planner

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/TheCamusean/itomp/collision"
	"github.com/TheCamusean/itomp/config"
	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/optimization"
	"github.com/TheCamusean/itomp/trajectory"
)

// Request describes one planning attempt.
type Request struct {
	// Start is the robot's full current configuration.
	Start []float64
	// Goal holds the target values of the planning group's joints.
	Goal []float64
	// InitialActivation seeds every contact activation.
	InitialActivation float64
	// AddNoise perturbs the seed before the search to escape local minima.
	AddNoise bool
}

// Result is what the external execution layer consumes.
type Result struct {
	Trajectory *trajectory.Full
	Cost       float64
	Feasible   bool
}

// Planner owns the static pieces of planning: the model, group, parameters, and
// the kinematics and collision ports. Each Plan call builds a fresh evaluation
// engine, so planners may be reused across attempts but not concurrently.
type Planner struct {
	model   *kinematics.RobotModel
	group   *kinematics.PlanningGroup
	params  *config.Parameters
	solver  kinematics.Solver
	checker collision.Checker
	logger  golog.Logger
}

// New validates and assembles a planner.
func New(
	model *kinematics.RobotModel,
	group *kinematics.PlanningGroup,
	params *config.Parameters,
	solver kinematics.Solver,
	checker collision.Checker,
	logger golog.Logger,
) (*Planner, error) {
	if err := group.Validate(model); err != nil {
		return nil, err
	}
	if err := params.Validate("planner"); err != nil {
		return nil, err
	}
	return &Planner{model: model, group: group, params: params, solver: solver, checker: checker, logger: logger}, nil
}

// Plan runs one optimization attempt. Any restart policy is the caller's.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if len(req.Start) != p.model.NumJoints() {
		return nil, errors.Errorf("start configuration has %d joints, robot has %d", len(req.Start), p.model.NumJoints())
	}
	if len(req.Goal) != p.group.NumJoints() {
		return nil, errors.Errorf("goal has %d joints, planning group has %d", len(req.Goal), p.group.NumJoints())
	}

	groupTraj, err := trajectory.New(
		p.group.NumJoints(), p.group.NumContacts(),
		p.params.NumContactPhases, p.params.PhaseStride,
		p.params.Discretization,
	)
	if err != nil {
		return nil, err
	}
	fullTraj, err := trajectory.NewFull(groupTraj, p.model.NumJoints())
	if err != nil {
		return nil, err
	}
	if err := fullTraj.FillConstant(req.Start); err != nil {
		return nil, err
	}

	p.seed(groupTraj, req)

	manager, err := optimization.NewEvaluationManager(
		p.model, p.group, p.params, p.solver, p.checker, groupTraj, fullTraj, p.logger,
	)
	if err != nil {
		return nil, err
	}
	driver := optimization.NewDriver(manager, p.logger)

	finalCost, err := driver.Solve(ctx, req.AddNoise)
	if err != nil {
		return nil, err
	}
	return &Result{
		Trajectory: fullTraj,
		Cost:       finalCost,
		Feasible:   manager.LastFeasible(),
	}, nil
}

// seed writes a straight-line keyframe interpolation from the start's group
// values to the goal, zero keyframe velocities, and uniform contact activations.
func (p *Planner) seed(groupTraj *trajectory.Trajectory, req Request) {
	numPhases := groupTraj.NumContactPhases()
	startGroup := make([]float64, p.group.NumJoints())
	for j, gj := range p.group.Joints {
		startGroup[j] = req.Start[gj.FullIndex]
	}

	positions := make([]float64, p.group.NumJoints())
	velocities := make([]float64, p.group.NumJoints())
	for k := 0; k <= numPhases; k++ {
		alpha := float64(k) / float64(numPhases)
		for j := range positions {
			positions[j] = (1-alpha)*startGroup[j] + alpha*req.Goal[j]
		}
		groupTraj.SetKeyframe(k, positions, velocities)
	}
	groupTraj.UpdateFromFreePoints()

	if contacts := groupTraj.Contacts(); contacts != nil {
		for phase := 0; phase <= numPhases; phase++ {
			for c := 0; c < groupTraj.NumContacts(); c++ {
				contacts.Set(phase, c, req.InitialActivation)
			}
		}
	}
}
