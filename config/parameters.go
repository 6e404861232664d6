// Package config carries the read-only planning parameters: cost weights,
// contact-phase partition, friction, and tolerances. Parameters are loaded once
// per planning attempt and never mutated during evaluation.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Parameters configures one planning attempt.
type Parameters struct {
	// Discretization is the trajectory time step in seconds.
	Discretization float64 `json:"discretization"`
	// NumContactPhases partitions the trajectory into this many uniform phases.
	NumContactPhases int `json:"num_contact_phases"`
	// PhaseStride is the number of waypoints per contact phase.
	PhaseStride int `json:"phase_stride"`

	SmoothnessCostVelocity     float64 `json:"smoothness_cost_velocity"`
	SmoothnessCostAcceleration float64 `json:"smoothness_cost_acceleration"`
	SmoothnessCostJerk         float64 `json:"smoothness_cost_jerk"`
	RidgeFactor                float64 `json:"ridge_factor"`
	// JointCosts scales the smoothness penalty per joint name; absent joints
	// default to 1.
	JointCosts map[string]float64 `json:"joint_costs,omitempty"`

	SmoothnessCostWeight       float64 `json:"smoothness_cost_weight"`
	ContactInvariantCostWeight float64 `json:"contact_invariant_cost_weight"`
	PhysicsViolationCostWeight float64 `json:"physics_violation_cost_weight"`
	CollisionCostWeight        float64 `json:"collision_cost_weight"`

	FrictionCoefficient  float64 `json:"friction_coefficient"`
	FeasibilityTolerance float64 `json:"feasibility_tolerance"`
	// GravityMagnitude sets the gravity force magnitude. The default of 1.0 is a
	// deliberate relative-units convention: all force and cost magnitudes are
	// relative to body weight. Set 9.8 for physical units.
	GravityMagnitude float64 `json:"gravity_magnitude"`
	GroundHeight     float64 `json:"ground_height"`

	// NoiseScale scales the zero-mean unit-covariance perturbation applied to the
	// optimization vector before a search.
	NoiseScale float64 `json:"noise_scale"`
	// MaxIterations bounds the objective evaluations of one search.
	MaxIterations int `json:"max_iterations"`
}

// Default returns the standard parameter set.
func Default() *Parameters {
	return &Parameters{
		Discretization:             0.05,
		NumContactPhases:           4,
		PhaseStride:                5,
		SmoothnessCostVelocity:     0.0,
		SmoothnessCostAcceleration: 1.0,
		SmoothnessCostJerk:         0.0,
		RidgeFactor:                0.0,
		SmoothnessCostWeight:       0.0001,
		ContactInvariantCostWeight: 1.0,
		PhysicsViolationCostWeight: 1.0,
		CollisionCostWeight:        1.0,
		FrictionCoefficient:        2.0,
		FeasibilityTolerance:       0.01,
		GravityMagnitude:           1.0,
		GroundHeight:               0.0,
		NoiseScale:                 0.01,
		MaxIterations:              5000,
	}
}

// Validate checks the parameter set for degenerate values.
func (p *Parameters) Validate(path string) error {
	if p.Discretization <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("discretization must be positive"))
	}
	if p.NumContactPhases < 2 {
		return goutils.NewConfigValidationError(path, errors.New("need at least two contact phases"))
	}
	if p.PhaseStride < 1 {
		return goutils.NewConfigValidationError(path, errors.New("phase stride must be at least 1"))
	}
	if p.FrictionCoefficient < 0 {
		return goutils.NewConfigValidationError(path, errors.New("friction coefficient cannot be negative"))
	}
	if p.GravityMagnitude <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("gravity magnitude must be positive"))
	}
	if p.MaxIterations < 1 {
		return goutils.NewConfigValidationError(path, errors.New("max iterations must be at least 1"))
	}
	return nil
}

// JointCost returns the smoothness scale for a joint, defaulting to 1.
func (p *Parameters) JointCost(name string) float64 {
	if c, ok := p.JointCosts[name]; ok {
		return c
	}
	return 1.0
}

// Read loads parameters from a JSON file over the defaults.
func Read(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading parameters")
	}
	p := Default()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "parsing parameters")
	}
	if err := p.Validate(path); err != nil {
		return nil, err
	}
	return p, nil
}
