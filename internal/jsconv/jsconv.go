// Package jsconv converts JavaScript numbers to the integer types of
// exported functions, the way generated binding glue coerces arguments.
package jsconv

import "math"

const twoTo32 = 1 << 32

// ToUint32 implements the ECMAScript ToUint32 abstract operation.
//
// NaN and infinities become 0. Other values are truncated toward zero and
// reduced modulo 2^32, so -1 becomes math.MaxUint32 and 2^32 becomes 0.
//
// See https://tc39.es/ecma262/#sec-touint32
func ToUint32(v float64) uint32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(v), twoTo32)
	if m < 0 {
		m += twoTo32
	}
	return uint32(m)
}
