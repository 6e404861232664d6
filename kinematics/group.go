package kinematics

import "github.com/pkg/errors"

// GroupJoint binds a planning-group joint to its slot in the full robot joint array.
type GroupJoint struct {
	Name      string
	FullIndex int
	Limit     Limit
	Limited   bool
}

// ContactDef names an end-effector link that can make scheduled contact.
type ContactDef struct {
	Name     string
	LinkName string
}

// PlanningGroup is the subset of robot joints a single planning attempt optimizes,
// along with the group's contact points. The full trajectory is always derivable
// from the group trajectory through the FullIndex embedding; joints outside the
// group stay constant.
type PlanningGroup struct {
	Name     string
	Joints   []GroupJoint
	Contacts []ContactDef

	// DynamicsRelevant marks groups (e.g. lower-body or whole-body groups) whose
	// trajectories are checked for physical consistency. Other groups contribute
	// zero physics-violation cost.
	DynamicsRelevant bool
}

// NumJoints returns the number of joints in the group.
func (g *PlanningGroup) NumJoints() int {
	return len(g.Joints)
}

// NumContacts returns the number of contact points in the group.
func (g *PlanningGroup) NumContacts() int {
	return len(g.Contacts)
}

// Validate checks the group's embedding against a robot model.
func (g *PlanningGroup) Validate(model *RobotModel) error {
	if len(g.Joints) == 0 {
		return errors.Errorf("planning group %q has no joints", g.Name)
	}
	for _, j := range g.Joints {
		if j.FullIndex < 0 || j.FullIndex >= model.NumJoints() {
			return errors.Errorf("planning group %q: joint %q index %d out of range [0,%d)",
				g.Name, j.Name, j.FullIndex, model.NumJoints())
		}
	}
	for _, c := range g.Contacts {
		if _, err := model.SegmentIndex(c.LinkName); err != nil {
			return errors.Wrapf(err, "planning group %q: contact %q", g.Name, c.Name)
		}
	}
	return nil
}
