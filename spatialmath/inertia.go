package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Inertia is a rotational inertia tensor about a body's center of gravity,
// expressed in the body's local frame.
type Inertia struct {
	tensor *mat.SymDense
}

// NewInertia constructs an inertia tensor from its six independent elements.
func NewInertia(ixx, iyy, izz, ixy, ixz, iyz float64) Inertia {
	t := mat.NewSymDense(3, nil)
	t.SetSym(0, 0, ixx)
	t.SetSym(1, 1, iyy)
	t.SetSym(2, 2, izz)
	t.SetSym(0, 1, ixy)
	t.SetSym(0, 2, ixz)
	t.SetSym(1, 2, iyz)
	return Inertia{tensor: t}
}

// NewDiagonalInertia constructs an inertia tensor with the given principal moments.
func NewDiagonalInertia(ixx, iyy, izz float64) Inertia {
	return NewInertia(ixx, iyy, izz, 0, 0, 0)
}

// IsZero reports whether the tensor is absent or all zero.
func (i Inertia) IsZero() bool {
	if i.tensor == nil {
		return true
	}
	for r := 0; r < 3; r++ {
		for c := r; c < 3; c++ {
			if i.tensor.At(r, c) != 0 {
				return false
			}
		}
	}
	return true
}

// RotatedMulVec computes (R I Rᵀ) w, the product of the world-frame inertia tensor
// with a world-frame vector, where R is the body's world rotation. The tensor is
// applied in the local frame to avoid materializing the rotated matrix.
func (i Inertia) RotatedMulVec(rotation quat.Number, w r3.Vector) r3.Vector {
	if i.tensor == nil {
		return r3.Vector{}
	}
	local := RotateVector(quat.Conj(rotation), w)
	v := mat.NewVecDense(3, []float64{local.X, local.Y, local.Z})
	var out mat.VecDense
	out.MulVec(i.tensor, v)
	return RotateVector(rotation, r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)})
}
