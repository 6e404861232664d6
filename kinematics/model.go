// Package kinematics describes an articulated robot as a tree of segments driven by
// a flat joint array, and defines the solver port that maps joint arrays to
// world-frame segment poses.
package kinematics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/TheCamusean/itomp/spatialmath"
)

// JointType enumerates the supported joint kinds.
type JointType int

// Supported joint kinds. Fixed segments consume no entry of the joint array.
const (
	JointFixed JointType = iota
	JointRevolute
	JointPrismatic
)

// Limit represents the minimum and maximum allowable values for a joint.
type Limit struct {
	Min float64
	Max float64
}

// Segment is one link of the robot tree. Its pose is its parent's pose composed
// with a static offset and the transform of its driving joint.
type Segment struct {
	Name   string
	Parent int // index of the parent segment, -1 for the root
	Joint  JointType
	// Axis is the joint axis in the segment's local frame. Ignored for fixed joints.
	Axis r3.Vector
	// Offset is the static transform from the parent frame to this segment's
	// joint frame.
	Offset spatialmath.Pose
	// JointIndex is this segment's index into the full robot joint array, or -1
	// for fixed segments.
	JointIndex int

	Mass         float64
	CenterOfMass r3.Vector // in the segment's local frame
	Inertia      spatialmath.Inertia
}

// RobotModel is an immutable kinematic description of a robot.
type RobotModel struct {
	name         string
	segments     []Segment
	limits       []Limit
	segmentIndex map[string]int
}

// NewRobotModel validates the segment tree and returns a model. Limits must have
// one entry per joint-array slot.
func NewRobotModel(name string, segments []Segment, limits []Limit) (*RobotModel, error) {
	index := make(map[string]int, len(segments))
	for i, seg := range segments {
		if seg.Parent >= i {
			return nil, errors.Errorf("segment %q: parent index %d does not precede segment index %d", seg.Name, seg.Parent, i)
		}
		if seg.Joint != JointFixed {
			if seg.JointIndex < 0 || seg.JointIndex >= len(limits) {
				return nil, errors.Errorf("segment %q: joint index %d out of range [0,%d)", seg.Name, seg.JointIndex, len(limits))
			}
			if seg.Axis.Norm() == 0 {
				return nil, errors.Errorf("segment %q: driven segment has zero joint axis", seg.Name)
			}
		}
		if _, dup := index[seg.Name]; dup {
			return nil, errors.Errorf("duplicate segment name %q", seg.Name)
		}
		index[seg.Name] = i
	}
	return &RobotModel{name: name, segments: segments, limits: limits, segmentIndex: index}, nil
}

// Name returns the robot's name.
func (m *RobotModel) Name() string {
	return m.name
}

// Segments returns the ordered segment list.
func (m *RobotModel) Segments() []Segment {
	return m.segments
}

// NumSegments returns the number of segments in the tree.
func (m *RobotModel) NumSegments() int {
	return len(m.segments)
}

// NumJoints returns the size of the full robot joint array.
func (m *RobotModel) NumJoints() int {
	return len(m.limits)
}

// Limits returns the per-joint limits for the full joint array.
func (m *RobotModel) Limits() []Limit {
	return m.limits
}

// SegmentIndex resolves a segment name to its index.
func (m *RobotModel) SegmentIndex(name string) (int, error) {
	i, ok := m.segmentIndex[name]
	if !ok {
		return 0, errors.Errorf("robot %q has no segment named %q", m.name, name)
	}
	return i, nil
}

// ParentSegment returns the parent index of the given segment, or -1 for the root.
func (m *RobotModel) ParentSegment(i int) int {
	return m.segments[i].Parent
}
