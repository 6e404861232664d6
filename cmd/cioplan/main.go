// Package main plans a contact-supported stance motion for a demo biped and
// prints the resulting costs.
package main

import (
	"context"
	"flag"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	goutils "go.viam.com/utils"

	"github.com/TheCamusean/itomp/collision"
	"github.com/TheCamusean/itomp/config"
	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/planner"
	"github.com/TheCamusean/itomp/spatialmath"
)

var logger = golog.NewDevelopmentLogger("cioplan")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configPath := flags.String("config", "", "planning parameters JSON")
	noise := flags.Bool("noise", false, "perturb the seed before searching")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	params := config.Default()
	if *configPath != "" {
		var err error
		if params, err = config.Read(*configPath); err != nil {
			return err
		}
	}

	model, group, err := demoBiped()
	if err != nil {
		return err
	}
	checker, err := collision.NewSphereWorld(model, []collision.RobotSphere{
		{LinkName: "trunk", Radius: 0.15},
	}, nil)
	if err != nil {
		return err
	}

	p, err := planner.New(model, group, params, kinematics.NewChainSolver(model), checker, logger)
	if err != nil {
		return err
	}

	// lower the trunk slightly while both feet stay planted
	start := []float64{0, 0, 0.5}
	goal := []float64{0, 0, 0.45}
	result, err := p.Plan(ctx, planner.Request{
		Start:             start,
		Goal:              goal,
		InitialActivation: 10.0,
		AddNoise:          *noise,
	})
	if err != nil {
		return err
	}

	logger.Infow("plan finished", "cost", result.Cost, "feasible", result.Feasible)
	for i := 0; i < result.Trajectory.NumPoints(); i += params.PhaseStride {
		logger.Infow("waypoint",
			"index", i,
			"x", result.Trajectory.Value(i, 0),
			"y", result.Trajectory.Value(i, 1),
			"z", result.Trajectory.Value(i, 2),
		)
	}
	return nil
}

// demoBiped is a trunk on a prismatic xyz base with two rigid legs ending in
// foot contacts.
func demoBiped() (*kinematics.RobotModel, *kinematics.PlanningGroup, error) {
	identity := spatialmath.NewZeroPose()
	segments := []kinematics.Segment{
		{Name: "base_x", Parent: -1, Joint: kinematics.JointPrismatic, Axis: r3.Vector{X: 1}, Offset: identity, JointIndex: 0},
		{Name: "base_y", Parent: 0, Joint: kinematics.JointPrismatic, Axis: r3.Vector{Y: 1}, Offset: identity, JointIndex: 1},
		{Name: "base_z", Parent: 1, Joint: kinematics.JointPrismatic, Axis: r3.Vector{Z: 1}, Offset: identity, JointIndex: 2},
		{
			Name: "trunk", Parent: 2, Joint: kinematics.JointFixed, Offset: identity, JointIndex: -1,
			Mass: 1.0, Inertia: spatialmath.NewDiagonalInertia(0.02, 0.02, 0.01),
		},
		{
			Name: "left_foot", Parent: 3, Joint: kinematics.JointFixed, JointIndex: -1,
			Offset: spatialmath.NewPose(r3.Vector{X: 0.1, Z: -0.5}, identity.Rotation),
		},
		{
			Name: "right_foot", Parent: 3, Joint: kinematics.JointFixed, JointIndex: -1,
			Offset: spatialmath.NewPose(r3.Vector{X: -0.1, Z: -0.5}, identity.Rotation),
		},
	}
	limits := []kinematics.Limit{{Min: -1, Max: 1}, {Min: -1, Max: 1}, {Min: 0.1, Max: 1}}
	model, err := kinematics.NewRobotModel("demo_biped", segments, limits)
	if err != nil {
		return nil, nil, err
	}
	group := &kinematics.PlanningGroup{
		Name: "whole_body",
		Joints: []kinematics.GroupJoint{
			{Name: "base_x", FullIndex: 0, Limit: limits[0], Limited: true},
			{Name: "base_y", FullIndex: 1, Limit: limits[1], Limited: true},
			{Name: "base_z", FullIndex: 2, Limit: limits[2], Limited: true},
		},
		Contacts: []kinematics.ContactDef{
			{Name: "left_foot", LinkName: "left_foot"},
			{Name: "right_foot", LinkName: "right_foot"},
		},
		DynamicsRelevant: true,
	}
	return model, group, nil
}
