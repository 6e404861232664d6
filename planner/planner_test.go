package planner

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/TheCamusean/itomp/collision"
	"github.com/TheCamusean/itomp/config"
	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/spatialmath"
)

func planarBiped(t *testing.T) (*kinematics.RobotModel, *kinematics.PlanningGroup) {
	t.Helper()
	identity := spatialmath.NewZeroPose()
	segments := []kinematics.Segment{
		{Name: "base_x", Parent: -1, Joint: kinematics.JointPrismatic, Axis: r3.Vector{X: 1}, Offset: identity, JointIndex: 0},
		{Name: "base_z", Parent: 0, Joint: kinematics.JointPrismatic, Axis: r3.Vector{Z: 1}, Offset: identity, JointIndex: 1},
		{
			Name: "trunk", Parent: 1, Joint: kinematics.JointFixed, Offset: identity, JointIndex: -1,
			Mass: 1.0, Inertia: spatialmath.NewDiagonalInertia(0.02, 0.02, 0.01),
		},
		{
			Name: "left_foot", Parent: 2, Joint: kinematics.JointFixed, JointIndex: -1,
			Offset: spatialmath.NewPose(r3.Vector{X: 0.1, Z: -0.5}, identity.Rotation),
		},
		{
			Name: "right_foot", Parent: 2, Joint: kinematics.JointFixed, JointIndex: -1,
			Offset: spatialmath.NewPose(r3.Vector{X: -0.1, Z: -0.5}, identity.Rotation),
		},
	}
	limits := []kinematics.Limit{{Min: -1, Max: 1}, {Min: 0.1, Max: 1}}
	model, err := kinematics.NewRobotModel("planar_biped", segments, limits)
	test.That(t, err, test.ShouldBeNil)

	group := &kinematics.PlanningGroup{
		Name: "whole_body",
		Joints: []kinematics.GroupJoint{
			{Name: "base_x", FullIndex: 0, Limit: limits[0], Limited: true},
			{Name: "base_z", FullIndex: 1, Limit: limits[1], Limited: true},
		},
		Contacts: []kinematics.ContactDef{
			{Name: "left_foot", LinkName: "left_foot"},
			{Name: "right_foot", LinkName: "right_foot"},
		},
		DynamicsRelevant: true,
	}
	return model, group
}

func testParams() *config.Parameters {
	params := config.Default()
	params.NumContactPhases = 2
	params.PhaseStride = 3
	params.MaxIterations = 30
	return params
}

func TestNewValidation(t *testing.T) {
	model, group := planarBiped(t)
	logger := golog.NewTestLogger(t)
	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	badParams := testParams()
	badParams.NumContactPhases = 1
	_, err = New(model, group, badParams, kinematics.NewChainSolver(model), checker, logger)
	test.That(t, err, test.ShouldNotBeNil)

	badGroup := &kinematics.PlanningGroup{Name: "empty"}
	_, err = New(model, badGroup, testParams(), kinematics.NewChainSolver(model), checker, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(model, group, testParams(), kinematics.NewChainSolver(model), checker, logger)
	test.That(t, err, test.ShouldBeNil)
}

func TestPlanRequestValidation(t *testing.T) {
	model, group := planarBiped(t)
	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	p, err := New(model, group, testParams(), kinematics.NewChainSolver(model), checker, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = p.Plan(context.Background(), Request{Start: []float64{0}, Goal: []float64{0, 0.5}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = p.Plan(context.Background(), Request{Start: []float64{0, 0.5}, Goal: []float64{0}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlanStance(t *testing.T) {
	model, group := planarBiped(t)
	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	p, err := New(model, group, testParams(), kinematics.NewChainSolver(model), checker, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	start := []float64{0, 0.5}
	result, err := p.Plan(context.Background(), Request{
		Start:             start,
		Goal:              []float64{0, 0.5},
		InitialActivation: 1.0,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Trajectory, test.ShouldNotBeNil)
	test.That(t, result.Cost, test.ShouldBeGreaterThanOrEqualTo, 0)

	// the start anchor survives the search untouched
	test.That(t, result.Trajectory.Value(0, 0), test.ShouldAlmostEqual, start[0])
	test.That(t, result.Trajectory.Value(0, 1), test.ShouldAlmostEqual, start[1])
}
