package vmath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorMulVec(t *testing.T) {
	m := Tensor3{
		{1, 2, 3},
		{0, 1, 4},
		{5, 6, 0},
	}
	got := m.MulVec(V3(1, 1, 1))
	assert.Equal(t, V3(6, 5, 11), got)
}

func TestTensorDet(t *testing.T) {
	m := Tensor3{
		{1, 2, 3},
		{0, 1, 4},
		{5, 6, 0},
	}
	assert.InDelta(t, 1.0, m.Det(), 1e-12)
	assert.InDelta(t, 8.0, Diagonal3(2).Det(), 1e-12)
}

func TestTensorInverse(t *testing.T) {
	m := Tensor3{
		{1, 2, 3},
		{0, 1, 4},
		{5, 6, 0},
	}
	inv, err := m.Inverse()
	require.NoError(t, err)

	want := Tensor3{
		{-24, 18, 5},
		{20, -15, -4},
		{-5, 4, 1},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], inv[i][j], 1e-9, "element (%d,%d)", i, j)
		}
	}

	// t * t⁻¹ maps v back to itself
	v := V3(0.3, -2, 7)
	back := m.MulVec(inv.MulVec(v))
	assert.InDelta(t, v.X, back.X, 1e-9)
	assert.InDelta(t, v.Y, back.Y, 1e-9)
	assert.InDelta(t, v.Z, back.Z, 1e-9)
}

func TestTensorInverseSingular(t *testing.T) {
	m := Tensor3{
		{1, 2, 3},
		{2, 4, 6},
		{0, 0, 1},
	}
	_, err := m.Inverse()
	assert.True(t, errors.Is(err, ErrSingular))

	_, err = Tensor3{}.Solve(V3(1, 0, 0))
	assert.ErrorIs(t, err, ErrSingular)
}

func TestTensorSolveDiagonal(t *testing.T) {
	v, err := Diagonal3(0.5).Solve(V3(1, 2, 3))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v.X, 1e-12)
	assert.InDelta(t, 4.0, v.Y, 1e-12)
	assert.InDelta(t, 6.0, v.Z, 1e-12)
}
