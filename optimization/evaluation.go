// Package optimization contains the trajectory evaluation engine and the
// derivative-free quasi-Newton driver searching over its parameters.
package optimization

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/TheCamusean/itomp/collision"
	"github.com/TheCamusean/itomp/config"
	"github.com/TheCamusean/itomp/contact"
	"github.com/TheCamusean/itomp/cost"
	"github.com/TheCamusean/itomp/dynamics"
	"github.com/TheCamusean/itomp/kinematics"
	"github.com/TheCamusean/itomp/spatialmath"
	"github.com/TheCamusean/itomp/trajectory"
)

// relativeVelocityWeight couples the contact-point velocity into the
// contact-invariant term. Tunable, not physically derived.
const relativeVelocityWeight = 16.0

// penetrationEpsilon is the deepest penetration a waypoint may report and still
// count as valid.
const penetrationEpsilon = 1e-6

// EvaluationManager maps a candidate parameter set to per-waypoint and aggregate
// costs. It owns the trajectory buffers and all per-waypoint scratch, mutating
// them in place on every call: one instance supports one in-flight evaluation
// and must not be shared across goroutines. Use independent instances for
// concurrent evaluation.
type EvaluationManager struct {
	model   *kinematics.RobotModel
	group   *kinematics.PlanningGroup
	params  *config.Parameters
	solver  kinematics.Solver
	checker collision.Checker
	logger  golog.Logger

	groupTraj *trajectory.Trajectory
	fullTraj  *trajectory.Full
	embedding []int

	aggregator  *dynamics.Aggregator
	forceSolver *contact.ForceSolver
	accumulator *cost.Accumulator
	jointCosts  []*cost.SmoothnessCost
	contacts    []*contact.Point
	ground      contact.GroundPlane

	numJoints   int
	numContacts int
	numPoints   int
	numPhases   int

	jointArray    []float64
	positions     [][]r3.Vector
	axes          [][]r3.Vector
	poses         [][]spatialmath.Pose
	stateValidity []bool
	smoothnessCol []float64

	contactForces    []r3.Vector
	contactPositions []r3.Vector
	contactParents   []spatialmath.Pose
	contactValues    []float64
	violations       [][]contact.Violation
	contactVels      [][]r3.Vector

	iteration    int
	evaluating   bool
	lastFeasible bool
}

// NewEvaluationManager wires the engine for one planning attempt. The group
// trajectory's joint count must match the planning group, and the full
// trajectory must already be seeded with the robot's current configuration.
// Degenerate models (zero total mass, non-positive discretization) are rejected
// here, once, rather than during evaluation.
func NewEvaluationManager(
	model *kinematics.RobotModel,
	group *kinematics.PlanningGroup,
	params *config.Parameters,
	solver kinematics.Solver,
	checker collision.Checker,
	groupTraj *trajectory.Trajectory,
	fullTraj *trajectory.Full,
	logger golog.Logger,
) (*EvaluationManager, error) {
	if err := group.Validate(model); err != nil {
		return nil, err
	}
	if groupTraj.NumJoints() != group.NumJoints() {
		return nil, errors.Errorf("group trajectory has %d joints, planning group has %d",
			groupTraj.NumJoints(), group.NumJoints())
	}

	m := &EvaluationManager{
		model:       model,
		group:       group,
		params:      params,
		solver:      solver,
		checker:     checker,
		logger:      logger,
		groupTraj:   groupTraj,
		fullTraj:    fullTraj,
		numJoints:   group.NumJoints(),
		numContacts: group.NumContacts(),
		numPoints:   groupTraj.NumPoints(),
		numPhases:   groupTraj.NumContactPhases(),
		ground:      contact.GroundPlane{Height: params.GroundHeight},
		forceSolver: contact.NewForceSolver(),
	}

	m.embedding = make([]int, m.numJoints)
	for j, gj := range group.Joints {
		m.embedding[j] = gj.FullIndex
	}

	for _, def := range group.Contacts {
		pt, err := contact.NewPoint(def, model)
		if err != nil {
			return nil, err
		}
		m.contacts = append(m.contacts, pt)
	}

	var err error
	m.aggregator, err = dynamics.NewAggregator(model, m.numPoints, params.Discretization, params.GravityMagnitude)
	if err != nil {
		return nil, err
	}

	weights := cost.Weights{
		Smoothness:       params.SmoothnessCostWeight,
		ContactInvariant: params.ContactInvariantCostWeight,
		PhysicsViolation: params.PhysicsViolationCostWeight,
		Collision:        params.CollisionCostWeight,
	}
	m.accumulator, err = cost.NewAccumulator(m.numPoints, weights, params.FeasibilityTolerance)
	if err != nil {
		return nil, err
	}

	maxScale := 0.0
	m.jointCosts = make([]*cost.SmoothnessCost, m.numJoints)
	for j, gj := range group.Joints {
		jointWeight := params.JointCost(gj.Name)
		jc := cost.NewSmoothnessCost(m.numPoints, params.Discretization, cost.DerivativeWeights{
			Velocity:     jointWeight * params.SmoothnessCostVelocity,
			Acceleration: jointWeight * params.SmoothnessCostAcceleration,
			Jerk:         jointWeight * params.SmoothnessCostJerk,
		}, params.RidgeFactor)
		if s := jc.MaxQuadValue(); s > maxScale {
			maxScale = s
		}
		m.jointCosts[j] = jc
	}
	for _, jc := range m.jointCosts {
		jc.Scale(maxScale)
	}

	numSegments := model.NumSegments()
	m.jointArray = make([]float64, model.NumJoints())
	m.positions = make([][]r3.Vector, m.numPoints)
	m.axes = make([][]r3.Vector, m.numPoints)
	m.poses = make([][]spatialmath.Pose, m.numPoints)
	for i := 0; i < m.numPoints; i++ {
		m.positions[i] = make([]r3.Vector, numSegments)
		m.axes[i] = make([]r3.Vector, numSegments)
		m.poses[i] = make([]spatialmath.Pose, numSegments)
	}
	m.stateValidity = make([]bool, m.numPoints)
	m.smoothnessCol = make([]float64, m.numPoints)

	m.contactForces = make([]r3.Vector, m.numContacts)
	m.contactPositions = make([]r3.Vector, m.numContacts)
	m.contactParents = make([]spatialmath.Pose, m.numContacts)
	m.contactValues = make([]float64, m.numContacts)
	m.violations = make([][]contact.Violation, m.numContacts)
	m.contactVels = make([][]r3.Vector, m.numContacts)
	for i := 0; i < m.numContacts; i++ {
		m.violations[i] = make([]contact.Violation, m.numPoints)
		m.contactVels[i] = make([]r3.Vector, m.numPoints)
	}
	return m, nil
}

// GroupTrajectory returns the engine's group trajectory buffer.
func (m *EvaluationManager) GroupTrajectory() *trajectory.Trajectory { return m.groupTraj }

// FullTrajectory returns the engine's full-robot trajectory buffer.
func (m *EvaluationManager) FullTrajectory() *trajectory.Full { return m.fullTraj }

// Iteration returns the number of completed evaluations of this attempt.
func (m *EvaluationManager) Iteration() int { return m.iteration }

// LastFeasible reports whether the most recent evaluation was feasible: every
// waypoint valid and every weighted cost term under tolerance. It is a side
// channel; Evaluate always returns the aggregate cost regardless.
func (m *EvaluationManager) LastFeasible() bool { return m.lastFeasible }

// Evaluate writes the candidate parameters into the trajectory, repairs joint
// limit excursions, rolls the trajectory out through the kinematics port, and
// computes the aggregate and per-waypoint costs.
//
// positions and velocities must be (NumContactPhases-1)×NumJoints, activations
// NumContactPhases×NumContacts, and waypointCosts NumPoints long; any mismatch
// is a fatal precondition violation with no partial result.
func (m *EvaluationManager) Evaluate(
	positions, velocities, activations mat.Matrix,
	waypointCosts []float64,
) (float64, error) {
	if m.evaluating {
		return 0, errEvaluationInFlight
	}
	m.evaluating = true
	defer func() { m.evaluating = false }()

	numFree := m.numPhases - 1
	if r, c := positions.Dims(); r != numFree || c != m.numJoints {
		return 0, newShapeError("position", r, c, numFree, m.numJoints)
	}
	if r, c := velocities.Dims(); r != numFree || c != m.numJoints {
		return 0, newShapeError("velocity", r, c, numFree, m.numJoints)
	}
	if m.numContacts > 0 {
		if r, c := activations.Dims(); r != m.numPhases || c != m.numContacts {
			return 0, newShapeError("contact activation", r, c, m.numPhases, m.numContacts)
		}
	}
	if len(waypointCosts) != m.numPoints {
		return 0, newShapeError("waypoint cost", len(waypointCosts), 1, m.numPoints, 1)
	}

	// write the candidate into the free blocks of the group trajectory
	freePoints := m.groupTraj.FreePoints()
	freeVels := m.groupTraj.FreeVelocities()
	for i := 0; i < numFree; i++ {
		for j := 0; j < m.numJoints; j++ {
			freePoints.Set(i+1, j, positions.At(i, j))
			freeVels.Set(i+1, j, velocities.At(i, j))
		}
	}
	if m.numContacts > 0 {
		contacts := m.groupTraj.Contacts()
		for p := 0; p < m.numPhases; p++ {
			for c := 0; c < m.numContacts; c++ {
				contacts.Set(p, c, activations.At(p, c))
			}
		}
	}
	m.groupTraj.UpdateFromFreePoints()

	// cheap feasibility repair, not a smooth penalty: the candidate is silently
	// clamped without informing the optimizer
	m.handleJointLimits()

	if err := m.fullTraj.UpdateFromGroup(m.groupTraj, m.embedding); err != nil {
		return 0, err
	}

	if err := m.performForwardKinematics(); err != nil {
		return 0, err
	}

	trajectoryValid, err := m.computeValidityAndCollisionCosts()
	if err != nil {
		return 0, err
	}

	m.computeStabilityCosts()
	m.computeSmoothnessCost()

	for i := 0; i < m.numPoints; i++ {
		waypointCosts[i] = m.accumulator.WaypointCost(i)
	}
	m.lastFeasible = trajectoryValid && m.accumulator.IsFeasible()
	m.iteration++
	return m.accumulator.TrajectoryCost(), nil
}

// handleJointLimits hard-clamps interior free-range waypoints to their limits.
// Boundary anchors (the first waypoint and the final two) are exempt. Clamping
// is idempotent and leaves in-limit trajectories untouched.
func (m *EvaluationManager) handleJointLimits() {
	for j, gj := range m.group.Joints {
		if !gj.Limited {
			continue
		}
		for i := 1; i < m.numPoints-2; i++ {
			v := m.groupTraj.Value(i, j)
			if v > gj.Limit.Max {
				m.groupTraj.SetValue(i, j, gj.Limit.Max)
			} else if v < gj.Limit.Min {
				m.groupTraj.SetValue(i, j, gj.Limit.Min)
			}
		}
	}
}

// performForwardKinematics rolls every waypoint through the kinematics port. The
// first evaluation of an attempt recomputes every waypoint so the fixed boundary
// frames are populated; later evaluations recompute only the free interior.
func (m *EvaluationManager) performForwardKinematics() error {
	start, end := 1, m.numPoints-2
	first := m.iteration == 0
	if first {
		start, end = 0, m.numPoints-1
	}
	for i := start; i <= end; i++ {
		m.fullTraj.Point(i, m.jointArray)
		var err error
		if first {
			err = m.solver.FullKinematics(m.jointArray, m.positions[i], m.axes[i], m.poses[i])
		} else {
			err = m.solver.PartialKinematics(m.jointArray, m.positions[i], m.axes[i], m.poses[i])
		}
		if err != nil {
			return errors.Wrapf(err, "kinematics port failed at waypoint %d", i)
		}
	}
	return nil
}

// computeValidityAndCollisionCosts queries the collision port for every waypoint,
// accumulates penetration depths into the collision cost, and folds per-waypoint
// validity into the trajectory validity flag.
func (m *EvaluationManager) computeValidityAndCollisionCosts() (bool, error) {
	valid := true
	for i := 0; i < m.numPoints; i++ {
		m.fullTraj.Point(i, m.jointArray)
		collisions, err := m.checker.CheckCollisions(m.jointArray)
		if err != nil {
			return false, errors.Wrapf(err, "collision port failed at waypoint %d", i)
		}
		depthSum := 0.0
		maxDepth := 0.0
		for _, c := range collisions {
			depthSum += c.PenetrationDepth
			if c.PenetrationDepth > maxDepth {
				maxDepth = c.PenetrationDepth
			}
		}
		m.accumulator.SetCollision(i, depthSum)
		m.stateValidity[i] = maxDepth <= penetrationEpsilon
		if i > 0 && i < m.numPoints-1 && !m.stateValidity[i] {
			valid = false
		}
	}
	return valid, nil
}

// computeStabilityCosts runs the dynamics aggregation, the per-waypoint contact
// force solve, and fills the contact-invariant and physics-violation terms.
// Groups that are not dynamically relevant contribute zero to both.
func (m *EvaluationManager) computeStabilityCosts() {
	if !m.group.DynamicsRelevant || m.numContacts == 0 {
		for i := 0; i < m.numPoints; i++ {
			m.accumulator.SetContactInvariant(i, 0)
			m.accumulator.SetPhysicsViolation(i, 0)
		}
		return
	}

	m.aggregator.ComputeWrenches(m.poses, m.iteration == 0)
	dt := m.groupTraj.Discretization()
	for c, pt := range m.contacts {
		pt.UpdateViolations(1, m.numPoints-2, dt, m.ground, m.poses, m.violations[c], m.contactVels[c])
	}

	for point := 1; point <= m.numPoints-2; point++ {
		phase := m.groupTraj.ContactPhase(point)
		for c, pt := range m.contacts {
			m.contactPositions[c] = pt.Position(point, m.poses)
			m.contactParents[c] = pt.ParentFrame(point, m.poses)
			m.contactValues[c] = m.groupTraj.ContactValue(phase, c)
		}

		target := m.aggregator.ReferenceWrench(point)
		if err := m.forceSolver.Solve(
			m.params.FrictionCoefficient,
			m.contactPositions,
			target,
			m.contactValues,
			m.contactParents,
			m.contactForces,
		); err != nil {
			// the solve is regularized and cannot fail on well-formed input;
			// treat a failure as a maximally violated waypoint
			m.logger.Errorw("contact force solve failed", "waypoint", point, "error", err)
			for c := range m.contactForces {
				m.contactForces[c] = r3.Vector{}
			}
		}

		invariant := 0.0
		for c := range m.contacts {
			violation := m.violations[c][point].Norm2() +
				relativeVelocityWeight*m.contactVels[c][point].Norm2()
			invariant += m.contactValues[c] * violation
		}

		var contactWrench spatialmath.Wrench
		for c := range m.contacts {
			contactWrench.Force = contactWrench.Force.Add(m.contactForces[c])
			contactWrench.Torque = contactWrench.Torque.Add(m.contactPositions[c].Cross(m.contactForces[c]))
		}
		residual := contactWrench.Add(target)

		m.accumulator.SetContactInvariant(point, invariant)
		m.accumulator.SetPhysicsViolation(point, residual.Norm())
	}
	m.accumulator.SetContactInvariant(0, 0)
	m.accumulator.SetPhysicsViolation(0, 0)
	m.accumulator.SetContactInvariant(m.numPoints-1, 0)
	m.accumulator.SetPhysicsViolation(m.numPoints-1, 0)
}

// computeSmoothnessCost sums the per-joint quadratic forms over the group
// trajectory columns.
func (m *EvaluationManager) computeSmoothnessCost() {
	total := 0.0
	for j := 0; j < m.numJoints; j++ {
		for i := 0; i < m.numPoints; i++ {
			m.smoothnessCol[i] = m.groupTraj.Value(i, j)
		}
		total += m.jointCosts[j].Cost(m.smoothnessCol)
	}
	m.accumulator.SetSmoothness(total)
}

// Accumulator exposes the per-term cost state of the most recent evaluation.
func (m *EvaluationManager) Accumulator() *cost.Accumulator { return m.accumulator }
