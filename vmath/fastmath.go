package vmath

import "math"

// invSqrtMagic is the 64-bit counterpart of the classic 0x5f3759df constant.
const invSqrtMagic = 0x5fe6eb50c7b537a9

// InvSqrt approximates 1/sqrt(x) with the bit-level initial guess and a single
// Newton step. Relative error stays below ~0.2% for positive normal inputs.
// InvSqrt(0) returns a very large finite value rather than +Inf.
func InvSqrt(x float64) float64 {
	half := x * 0.5
	i := math.Float64bits(x)
	i = invSqrtMagic - (i >> 1)
	y := math.Float64frombits(i)
	y = y * (1.5 - half*y*y)
	return y
}
