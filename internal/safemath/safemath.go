package safemath

import "math"

// AddInt32 returns a+b wrapped to 32 bits and whether the signed addition
// stayed in range: both operands share a sign that the result does not.
func AddInt32(a, b uint32) (uint32, bool) {
	v := a + b
	overflow := (a^v)&(b^v)&(1<<31) != 0
	return v, !overflow
}

// SubInt32 returns a-b wrapped to 32 bits and whether the signed subtraction
// stayed in range: the operands differ in sign and the result takes b's sign.
func SubInt32(a, b uint32) (uint32, bool) {
	v := a - b
	overflow := (a^b)&(a^v)&(1<<31) != 0
	return v, !overflow
}

// MulInt32 returns a*b wrapped to 32 bits and whether the exact signed
// product equals the signed view of the wrapped result.
func MulInt32(a, b uint32) (uint32, bool) {
	v := a * b
	exact := int64(int32(a)) * int64(int32(b))
	return v, exact == int64(int32(v))
}

// DivInt32 is signed division truncating toward zero. Division by zero
// yields 0 and MinInt32 / -1 wraps back to MinInt32; both report !ok.
func DivInt32(a, b uint32) (uint32, bool) {
	if b == 0 {
		return 0, false
	}
	if int32(a) == math.MinInt32 && int32(b) == -1 {
		return a, false
	}
	return uint32(int32(a) / int32(b)), true
}
