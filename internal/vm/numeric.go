package vm

import "math"

// toInt32 implements ECMAScript's ToInt32 abstract operation well enough
// for this minimal engine's bitwise ops: truncate toward zero, wrap into
// the 32-bit range. NaN/Infinity map to 0, matching the spec.
func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	n := math.Trunc(f)
	m := math.Mod(n, 4294967296) // 2^32
	if m < 0 {
		m += 4294967296
	}
	if m >= 2147483648 { // 2^31
		m -= 4294967296
	}
	return int32(m)
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	n := math.Trunc(f)
	m := math.Mod(n, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}
