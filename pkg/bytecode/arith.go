package bytecode

import "math"

// Numeric semantics shared by the interpreter and the compile-time
// constant folder. Folding a literal expression must produce exactly
// the value the VM would compute, so both sides call these.

// F32ToI32 converts f32 to i32 with truncation toward zero. NaN maps to
// 0; values outside the i32 range saturate.
func F32ToI32(f float32) int32 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

// I32Shl shifts left with the count masked to 5 bits.
func I32Shl(a, b int32) int32 {
	return int32(uint32(a) << (uint32(b) & 31))
}

// I32Shr shifts right arithmetically with the count masked to 5 bits.
func I32Shr(a, b int32) int32 {
	return a >> (uint32(b) & 31)
}
