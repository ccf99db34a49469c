package vmath

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSingular is returned when inverting a tensor with zero determinant.
var ErrSingular = errors.New("vmath: singular tensor")

// Tensor3 is a 3×3 tensor stored row-major with value semantics.
type Tensor3 [3][3]float64

// Identity3 returns the identity tensor.
func Identity3() Tensor3 {
	return Tensor3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Diagonal3 returns s times the identity tensor.
func Diagonal3(s float64) Tensor3 {
	return Identity3().Scale(s)
}

// Scale returns t with every element multiplied by s.
func (t Tensor3) Scale(s float64) Tensor3 {
	for i := range t {
		for j := range t[i] {
			t[i][j] *= s
		}
	}
	return t
}

// MulVec returns the linear map t·v.
func (t Tensor3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: t[0][0]*v.X + t[0][1]*v.Y + t[0][2]*v.Z,
		Y: t[1][0]*v.X + t[1][1]*v.Y + t[1][2]*v.Z,
		Z: t[2][0]*v.X + t[2][1]*v.Y + t[2][2]*v.Z,
	}
}

// Det returns the determinant of t.
func (t Tensor3) Det() float64 {
	return r3.NewMat(t.flat()).Det()
}

// Inverse returns t⁻¹, or ErrSingular when t cannot be inverted.
func (t Tensor3) Inverse() (Tensor3, error) {
	if t.Det() == 0 {
		return Tensor3{}, ErrSingular
	}

	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, t.flat())); err != nil {
		// Near-singular inputs come back as a mat.Condition error; the
		// result is unusable for physics either way.
		return Tensor3{}, errors.Join(ErrSingular, err)
	}

	var out Tensor3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// Solve returns t⁻¹·v.
func (t Tensor3) Solve(v Vec3) (Vec3, error) {
	inv, err := t.Inverse()
	if err != nil {
		return Vec3{}, err
	}
	return inv.MulVec(v), nil
}

func (t Tensor3) flat() []float64 {
	return []float64{
		t[0][0], t[0][1], t[0][2],
		t[1][0], t[1][1], t[1][2],
		t[2][0], t[2][1], t[2][2],
	}
}
