package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestRotateVector(t *testing.T) {
	rotZ90 := R4AAToQuat(r3.Vector{Z: 1}, math.Pi/2)
	got := RotateVector(rotZ90, r3.Vector{X: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, got.Z, test.ShouldAlmostEqual, 0, 1e-12)
}

func TestComposeTranslations(t *testing.T) {
	a := NewPose(r3.Vector{X: 1}, quat.Number{Real: 1})
	b := NewPose(r3.Vector{Y: 2}, quat.Number{Real: 1})
	got := Compose(a, b)
	test.That(t, got.Point, test.ShouldResemble, r3.Vector{X: 1, Y: 2})
}

func TestComposeRotatesChildTranslation(t *testing.T) {
	a := NewPose(r3.Vector{}, R4AAToQuat(r3.Vector{Z: 1}, math.Pi/2))
	b := NewPose(r3.Vector{X: 1}, quat.Number{Real: 1})
	got := Compose(a, b)
	test.That(t, got.Point.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, got.Point.Y, test.ShouldAlmostEqual, 1, 1e-12)
}

func TestOrientationDelta(t *testing.T) {
	prev := quat.Number{Real: 1}
	cur := R4AAToQuat(r3.Vector{Z: 1}, 0.1)
	delta := OrientationDelta(prev, cur)
	test.That(t, delta.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, delta.Y, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, delta.Z, test.ShouldAlmostEqual, 0.1, 1e-9)

	// no rotation yields the zero vector exactly
	test.That(t, OrientationDelta(prev, prev), test.ShouldResemble, r3.Vector{})
}

func TestInertiaRotatedMulVec(t *testing.T) {
	inertia := NewDiagonalInertia(1, 2, 3)
	rotZ90 := R4AAToQuat(r3.Vector{Z: 1}, math.Pi/2)
	// rotating the principal axes 90 degrees about z swaps the x and y moments
	got := inertia.RotatedMulVec(rotZ90, r3.Vector{X: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, got.Y, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, got.Z, test.ShouldAlmostEqual, 0, 1e-12)
}

func TestInertiaZero(t *testing.T) {
	var zero Inertia
	test.That(t, zero.IsZero(), test.ShouldBeTrue)
	test.That(t, zero.RotatedMulVec(quat.Number{Real: 1}, r3.Vector{X: 1}), test.ShouldResemble, r3.Vector{})
	test.That(t, NewDiagonalInertia(1, 1, 1).IsZero(), test.ShouldBeFalse)
}

func TestWrench(t *testing.T) {
	w := Wrench{Force: r3.Vector{X: 3}, Torque: r3.Vector{Y: 4}}
	test.That(t, w.Norm(), test.ShouldAlmostEqual, 5)
	sum := w.Add(Wrench{Force: r3.Vector{X: -3}, Torque: r3.Vector{Y: -4}})
	test.That(t, sum.Norm(), test.ShouldAlmostEqual, 0)
}
