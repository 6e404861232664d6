package optimization

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/TheCamusean/itomp/collision"
	"github.com/TheCamusean/itomp/config"
	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/spatialmath"
	"github.com/TheCamusean/itomp/trajectory"
)

// stanceBiped is a trunk on a prismatic xyz base with two rigid legs ending in
// foot contacts, standing with both feet planted.
func stanceBiped(t *testing.T) (*kinematics.RobotModel, *kinematics.PlanningGroup) {
	t.Helper()
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
	model, err := kinematics.NewRobotModel("stance_biped", segments, limits)
	test.That(t, err, test.ShouldBeNil)

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
	return model, group
}

func stanceParams() *config.Parameters {
	params := config.Default()
	params.NumContactPhases = 2
	params.PhaseStride = 3
	return params
}

// stanceTrajectories seeds a constant standing trajectory pair with the given
// trunk height and contact activation.
func stanceTrajectories(t *testing.T, params *config.Parameters, height, activation float64) (*trajectory.Trajectory, *trajectory.Full) {
	t.Helper()
	groupTraj, err := trajectory.New(3, 2, params.NumContactPhases, params.PhaseStride, params.Discretization)
	test.That(t, err, test.ShouldBeNil)
	stand := []float64{0, 0, height}
	for k := 0; k <= params.NumContactPhases; k++ {
		groupTraj.SetKeyframe(k, stand, []float64{0, 0, 0})
		for c := 0; c < 2; c++ {
			groupTraj.Contacts().Set(k, c, activation)
		}
	}
	groupTraj.UpdateFromFreePoints()

	fullTraj, err := trajectory.NewFull(groupTraj, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fullTraj.FillConstant(stand), test.ShouldBeNil)
	return groupTraj, fullTraj
}

// newStanceEngine wires an engine around a seeded standing trajectory.
func newStanceEngine(t *testing.T, params *config.Parameters, height, activation float64) *EvaluationManager {
	t.Helper()
	model, group := stanceBiped(t)
	groupTraj, fullTraj := stanceTrajectories(t, params, height, activation)

	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	manager, err := NewEvaluationManager(
		model, group, params, kinematics.NewChainSolver(model), checker,
		groupTraj, fullTraj, golog.NewTestLogger(t),
	)
	test.That(t, err, test.ShouldBeNil)
	return manager
}

// stanceCandidate packs the engine's current free blocks into candidate matrices.
func stanceCandidate(m *EvaluationManager) (positions, velocities, activations *mat.Dense) {
	numFree := m.numPhases - 1
	positions = mat.NewDense(numFree, m.numJoints, nil)
	velocities = mat.NewDense(numFree, m.numJoints, nil)
	activations = mat.NewDense(m.numPhases, m.numContacts, nil)
	for i := 0; i < numFree; i++ {
		for j := 0; j < m.numJoints; j++ {
			positions.Set(i, j, m.groupTraj.FreePoints().At(i+1, j))
			velocities.Set(i, j, m.groupTraj.FreeVelocities().At(i+1, j))
		}
	}
	for p := 0; p < m.numPhases; p++ {
		for c := 0; c < m.numContacts; c++ {
			activations.Set(p, c, m.groupTraj.ContactValue(p, c))
		}
	}
	return positions, velocities, activations
}

func TestEvaluateShapePreconditions(t *testing.T) {
	m := newStanceEngine(t, stanceParams(), 0.5, 1.0)
	costs := make([]float64, m.numPoints)
	good, goodVel, goodAct := stanceCandidate(m)

	_, err := m.Evaluate(mat.NewDense(2, 3, nil), goodVel, goodAct, costs)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "precondition violation")

	_, err = m.Evaluate(good, mat.NewDense(1, 2, nil), goodAct, costs)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = m.Evaluate(good, goodVel, mat.NewDense(3, 2, nil), costs)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = m.Evaluate(good, goodVel, goodAct, make([]float64, 2))
	test.That(t, err, test.ShouldNotBeNil)

	// a failed precondition leaves no partial result behind
	test.That(t, m.Iteration(), test.ShouldEqual, 0)
}

func TestEvaluateDeterminism(t *testing.T) {
	m := newStanceEngine(t, stanceParams(), 0.5, 1.0)
	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)

	first, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Iteration(), test.ShouldEqual, 1)

	// an unchanged candidate re-evaluates to the identical cost
	second, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second, test.ShouldAlmostEqual, first, 1e-12)
	test.That(t, m.Iteration(), test.ShouldEqual, 2)
}

func TestEvaluateWaypointBreakdown(t *testing.T) {
	m := newStanceEngine(t, stanceParams(), 0.5, 1.0)
	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)

	total, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)

	sum := 0.0
	for _, c := range costs {
		sum += c
	}
	test.That(t, sum, test.ShouldAlmostEqual, total, 1e-9)
}

func TestEvaluateJointLimitClamp(t *testing.T) {
	m := newStanceEngine(t, stanceParams(), 0.5, 1.0)
	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)

	// drive the free trunk keyframe far past its limit
	positions.Set(0, 2, 5.0)
	first, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)

	limit := 1.0
	for i := 1; i < m.numPoints-2; i++ {
		test.That(t, m.groupTraj.Value(i, 2), test.ShouldBeLessThanOrEqualTo, limit+1e-12)
	}
	// boundary anchors are exempt from the clamp
	test.That(t, m.groupTraj.Value(0, 2), test.ShouldAlmostEqual, 0.5)

	// clamping is deterministic across repeated evaluations
	second, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second, test.ShouldAlmostEqual, first, 1e-12)
}

func TestEvaluateZeroActivationContactInvariant(t *testing.T) {
	params := stanceParams()
	// isolate the contact-invariant term
	params.SmoothnessCostWeight = 0
	params.PhysicsViolationCostWeight = 0
	params.CollisionCostWeight = 0
	params.ContactInvariantCostWeight = 1

	// hovering feet would violate contact, but zero activation gates it all off
	m := newStanceEngine(t, params, 0.8, 0.0)
	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)

	total, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, total, test.ShouldAlmostEqual, 0)
}

func TestEvaluateActiveHoverIsPenalized(t *testing.T) {
	params := stanceParams()
	params.SmoothnessCostWeight = 0
	params.PhysicsViolationCostWeight = 0
	params.CollisionCostWeight = 0
	params.ContactInvariantCostWeight = 1

	m := newStanceEngine(t, params, 0.8, 1.0)
	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)

	total, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)
	// feet hover 0.3 above ground with full activation
	test.That(t, total, test.ShouldBeGreaterThan, 0.01)
}

func TestEvaluateSymmetricStanceBalances(t *testing.T) {
	params := stanceParams()
	params.SmoothnessCostWeight = 0
	params.ContactInvariantCostWeight = 0
	params.CollisionCostWeight = 0
	params.PhysicsViolationCostWeight = 1

	// feet planted, weight split evenly, forces balance gravity
	m := newStanceEngine(t, params, 0.5, 1.0)
	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)

	total, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, total, test.ShouldBeLessThan, params.FeasibilityTolerance)
	test.That(t, m.LastFeasible(), test.ShouldBeTrue)
}

func TestEvaluateStationaryNoPhysicsForIrrelevantGroup(t *testing.T) {
	params := stanceParams()
	model, group := stanceBiped(t)
	group.DynamicsRelevant = false

	groupTraj, err := trajectory.New(3, 2, params.NumContactPhases, params.PhaseStride, params.Discretization)
	test.That(t, err, test.ShouldBeNil)
	stand := []float64{0, 0, 0.8}
	for k := 0; k <= params.NumContactPhases; k++ {
		groupTraj.SetKeyframe(k, stand, []float64{0, 0, 0})
		groupTraj.Contacts().Set(k, 0, 1)
		groupTraj.Contacts().Set(k, 1, 1)
	}
	groupTraj.UpdateFromFreePoints()
	fullTraj, err := trajectory.NewFull(groupTraj, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fullTraj.FillConstant(stand), test.ShouldBeNil)
	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	m, err := NewEvaluationManager(
		model, group, params, kinematics.NewChainSolver(model), checker,
		groupTraj, fullTraj, golog.NewTestLogger(t),
	)
	test.That(t, err, test.ShouldBeNil)

	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)
	total, err := m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldBeNil)

	// hovering with full activation, but the group opts out of physics terms
	test.That(t, total, test.ShouldAlmostEqual, 0)
}

// downChecker is a collision port whose backing world has gone away.
type downChecker struct{}

func (downChecker) CheckCollisions([]float64) ([]collision.Collision, error) {
	return nil, errors.New("collision world unavailable")
}

// downSolver is a kinematics port whose backend has gone away.
type downSolver struct{}

func (downSolver) FullKinematics([]float64, []r3.Vector, []r3.Vector, []spatialmath.Pose) error {
	return errors.New("kinematics backend unavailable")
}

func (downSolver) PartialKinematics([]float64, []r3.Vector, []r3.Vector, []spatialmath.Pose) error {
	return errors.New("kinematics backend unavailable")
}

func TestEvaluateCollisionPortFailureIsFatal(t *testing.T) {
	params := stanceParams()
	model, group := stanceBiped(t)
	groupTraj, fullTraj := stanceTrajectories(t, params, 0.5, 1.0)

	m, err := NewEvaluationManager(
		model, group, params, kinematics.NewChainSolver(model), downChecker{},
		groupTraj, fullTraj, golog.NewTestLogger(t),
	)
	test.That(t, err, test.ShouldBeNil)

	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)
	_, err = m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "collision port failed")
	test.That(t, err.Error(), test.ShouldContainSubstring, "collision world unavailable")

	// the failed evaluation does not count as completed
	test.That(t, m.Iteration(), test.ShouldEqual, 0)
}

func TestEvaluateKinematicsPortFailureIsFatal(t *testing.T) {
	params := stanceParams()
	model, group := stanceBiped(t)
	groupTraj, fullTraj := stanceTrajectories(t, params, 0.5, 1.0)
	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	m, err := NewEvaluationManager(
		model, group, params, downSolver{}, checker,
		groupTraj, fullTraj, golog.NewTestLogger(t),
	)
	test.That(t, err, test.ShouldBeNil)

	positions, velocities, activations := stanceCandidate(m)
	costs := make([]float64, m.numPoints)
	_, err = m.Evaluate(positions, velocities, activations, costs)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "kinematics port failed")
	test.That(t, m.Iteration(), test.ShouldEqual, 0)
}

func TestNewEvaluationManagerRejectsMismatch(t *testing.T) {
	params := stanceParams()
	model, group := stanceBiped(t)

	groupTraj, err := trajectory.New(2, 2, params.NumContactPhases, params.PhaseStride, params.Discretization)
	test.That(t, err, test.ShouldBeNil)
	fullTraj, err := trajectory.NewFull(groupTraj, 3)
	test.That(t, err, test.ShouldBeNil)
	checker, err := collision.NewSphereWorld(model, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	_, err = NewEvaluationManager(
		model, group, params, kinematics.NewChainSolver(model), checker,
		groupTraj, fullTraj, golog.NewTestLogger(t),
	)
	test.That(t, err, test.ShouldNotBeNil)
}
